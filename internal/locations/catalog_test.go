package locations

import "testing"

func TestCatalog_HasExactlyCountEntries(t *testing.T) {
	if len(Catalog) != Count {
		t.Fatalf("expected %d locations, got %d", Count, len(Catalog))
	}
}

func TestCatalog_NoEmptyCityNames(t *testing.T) {
	for i, loc := range Catalog {
		if loc.City == "" {
			t.Fatalf("entry %d has empty city name", i)
		}
	}
}
