package testutil

// Prompt templates with a recognizable prefix per axis, so a StubGenerator
// can route each call by substring.
const (
	TimePrompt        = "axis=time\n{{.Code}}"
	SpacePrompt       = "axis=space\n{{.Code}}"
	ReadabilityPrompt = "axis=readability\n{{.Code}}"
	SynthesisPrompt   = "axis=synthesis\nCode:\n{{.Code}}\nReviews:\n{{.Reviews}}"
)

// AddSnippet is a small C++ function used across tests.
const AddSnippet = "int add(int a,int b){return a+b;}"

// BubbleSortSnippet is the default snippet of the original review UI.
const BubbleSortSnippet = `#include <iostream>
#include <vector>
using namespace std;

void do_stuff(vector<int> &a) {
    int n = a.size();
    for(int i = 0; i < n; i++) {
        for(int j = 0; j < n-i-1; j++) {
            if(a[j] > a[j+1]) {
                swap(a[j], a[j+1]);
            }
        }
    }
}
`
