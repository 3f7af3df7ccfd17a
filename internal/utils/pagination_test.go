package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, size, max int
		wantPage        int
		wantSize        int
	}{
		{1, 20, 100, 1, 20},
		{0, 20, 100, 1, 20},
		{-3, 0, 100, 1, 1},
		{2, 500, 100, 2, 100},
		{4, 10, 0, 4, 1},
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.size, tc.max)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%d,%d,%d) = %d,%d; want %d,%d", tc.page, tc.size, tc.max, p, s, tc.wantPage, tc.wantSize)
		}
	}
}
