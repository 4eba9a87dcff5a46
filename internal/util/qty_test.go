package util

import "testing"

func TestFormatQuantity(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain integer", input: "1200", want: "1,200"},
		{name: "already separated", input: "1,200", want: "1,200"},
		{name: "million", input: "2500000", want: "2,500,000"},
		{name: "decimal rounds", input: "1234.6", want: "1,235"},
		{name: "negative", input: "-500", want: "-500"},
		{name: "whitespace", input: " 800 ", want: "800"},
		{name: "empty", input: "", want: ""},
		{name: "non numeric passes through", input: "n/a", want: "n/a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatQuantity(tc.input); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
