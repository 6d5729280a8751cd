package fetch

import (
	"strings"
	"testing"
)

func TestHeuristicRequiresJS(t *testing.T) {
	t.Parallel()

	longText := strings.Repeat("haber metni ", 100)

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "empty body", body: "", want: true},
		{name: "short body", body: "<html><body>kısa</body></html>", want: true},
		{
			name: "empty spa root",
			body: "<html><body><div id=\"root\"></div>" + longText + "</body></html>",
			want: true,
		},
		{
			name: "react marker with thin text",
			body: "<html><body data-reactroot><p>" + strings.Repeat("x", 600) + "</p></body></html>",
			want: true,
		},
		{
			name: "loading placeholder",
			body: "<html><body><p>Loading...</p><p>" + strings.Repeat("y", 600) + "</p></body></html>",
			want: true,
		},
		{
			name: "regular article page",
			body: "<html><body><article>" + longText + "</article></body></html>",
			want: false,
		},
		{
			name: "populated spa root",
			body: "<html><body><div id=\"app\">" + longText + "</div></body></html>",
			want: false,
		},
	}

	d := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.RequiresJS([]byte(tt.body)); got != tt.want {
				t.Fatalf("RequiresJS() = %v, want %v", got, tt.want)
			}
		})
	}
}
