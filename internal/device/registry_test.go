package device

import "testing"

func TestParseOverrideValid(t *testing.T) {
	name, budget, err := ParseOverride("main=1,8")
	if err != nil {
		t.Fatalf("ParseOverride: %v", err)
	}
	if name != "main" {
		t.Errorf("name = %q, want main", name)
	}
	if budget != (Budget{Sequential: 1, Random: 8}) {
		t.Errorf("budget = %+v, want {1 8}", budget)
	}
}

func TestParseOverrideMalformed(t *testing.T) {
	cases := []string{"main", "main=1", "main=a,b", "=1,2"}
	for _, c := range cases {
		if _, _, err := ParseOverride(c); err == nil {
			t.Errorf("ParseOverride(%q) expected error", c)
		}
	}
}

func TestNewRegistryDefaults(t *testing.T) {
	r := NewRegistry(Budget{}, nil)
	if r.defaults.Sequential != 1 {
		t.Errorf("default sequential = %d, want 1", r.defaults.Sequential)
	}
	if r.defaults.Random <= 0 {
		t.Errorf("default random = %d, want > 0", r.defaults.Random)
	}
}

func TestBudgetForOverridePrecedence(t *testing.T) {
	r := NewRegistry(Budget{Sequential: 1, Random: 4}, map[string]Budget{
		"main": {Sequential: 2, Random: 16},
	})
	b := r.BudgetFor("main", 0, Unknown)
	if b != (Budget{Sequential: 2, Random: 16}) {
		t.Errorf("BudgetFor override = %+v, want {2 16}", b)
	}
}

func TestBudgetForClassDefaults(t *testing.T) {
	r := NewRegistry(Budget{Sequential: 1, Random: 4}, nil)

	ssd := r.BudgetFor("disk0", 0, SolidState)
	if ssd.Sequential != 4 || ssd.Random != 4 {
		t.Errorf("SSD budget = %+v, want wide sequential+random", ssd)
	}

	hdd := r.BudgetFor("disk1", 0, Rotational)
	if hdd.Sequential != 1 || hdd.Random != 1 {
		t.Errorf("rotational budget = %+v, want {1 1}", hdd)
	}

	unknown := r.BudgetFor("disk2", 0, Unknown)
	if unknown != (Budget{Sequential: 1, Random: 4}) {
		t.Errorf("unknown-class budget = %+v, want registry defaults", unknown)
	}
}

func TestClassForCaches(t *testing.T) {
	r := NewRegistry(Budget{}, nil)
	c1 := r.ClassFor("/nonexistent/path/that/does/not/exist", 999)
	c2 := r.ClassFor("/nonexistent/path/that/does/not/exist", 999)
	if c1 != c2 {
		t.Errorf("ClassFor not stable across calls: %v != %v", c1, c2)
	}
}

func TestIsNetworkMagic(t *testing.T) {
	if !isNetworkMagic(nfsSuperMagic) {
		t.Error("expected NFS magic to be classified as network")
	}
	if isNetworkMagic(0x1234) {
		t.Error("unexpected magic classified as network")
	}
}
