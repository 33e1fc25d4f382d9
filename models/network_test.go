package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompanyUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Company
	}{
		{name: "string", raw: `{"company":"X"}`, want: Company{"X"}},
		{name: "array", raw: `{"company":["V","W"]}`, want: Company{"V", "W"}},
		{name: "array with null", raw: `{"company":["V",null]}`, want: Company{"V"}},
		{name: "null", raw: `{"company":null}`, want: Company{}},
		{name: "absent", raw: `{}`, want: nil},
		{name: "number kept verbatim", raw: `{"company":42}`, want: Company{"42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Network
			if err := json.Unmarshal([]byte(tt.raw), &n); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if diff := cmp.Diff(tt.want, n.Company); diff != "" {
				t.Fatalf("company mismatch (-want +got):\n%s", diff)
			}
			if (tt.want == nil) != (n.Company == nil) {
				t.Fatalf("nil-ness mismatch: want nil=%v", tt.want == nil)
			}
		})
	}
}

func TestCompanyCSVCellRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Company
		cell string
	}{
		{name: "single", in: Company{"JCDecaux"}, cell: "JCDecaux"},
		{name: "several", in: Company{"JCDecaux", "Grand Lyon"}, cell: "JCDecaux; Grand Lyon"},
		{name: "none", in: Company{}, cell: ""},
		{name: "empty name", in: Company{""}, cell: `[""]`},
		{name: "separator in name", in: Company{"A; B", "C"}, cell: `["A; B","C"]`},
		{name: "bracket prefix", in: Company{"[x]"}, cell: `["[x]"]`},
		{name: "trailing semicolon", in: Company{"a;", " b"}, cell: "a;;  b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cell := tt.in.CSVCell()
			if cell != tt.cell {
				t.Fatalf("CSVCell() = %q, want %q", cell, tt.cell)
			}
			if diff := cmp.Diff(tt.in, ParseCompany(cell)); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCompanyFallsBackOnBadJSON(t *testing.T) {
	if diff := cmp.Diff(Company{"[not json"}, ParseCompany("[not json")); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestNewNetworkSummaryDerivesTotal(t *testing.T) {
	row := NewNetworkSummary("FR", "Paris", Company{"X"}, "N1", "a", "http://api.example.test/v2/networks/a", 1, 3, 4)
	if row.TotalSlots != 7 {
		t.Fatalf("total slots = %d, want 7", row.TotalSlots)
	}
}
