package fetch

import "testing"

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "plain title",
			html: `<html><head><title>Award Search</title></head><body></body></html>`,
			want: "Award Search",
		},
		{
			name: "whitespace trimmed",
			html: "<title>\n  Results  \n</title>",
			want: "Results",
		},
		{
			name: "no title",
			html: `<html><body><h1>hi</h1></body></html>`,
			want: "",
		},
		{
			name: "empty title",
			html: `<title></title>`,
			want: "",
		},
		{
			name: "not html at all",
			html: `{"json": true}`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTitle([]byte(tt.html)); got != tt.want {
				t.Errorf("extractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}
