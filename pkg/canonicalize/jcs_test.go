package canonicalize

import (
	"strings"
	"testing"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"alpha":2,"mid":3,"zeta":1}` {
		t.Fatalf("unexpected canonical form: %s", out)
	}
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]string{"q": "a<b&c>d"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), `<`) {
		t.Fatalf("HTML escaping leaked into canonical form: %s", out)
	}
}

func TestJCSStructFieldOrder(t *testing.T) {
	type entry struct {
		Zed  int    `json:"zed"`
		Name string `json:"name"`
	}
	out, err := JCS(entry{Zed: 9, Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"name":"x","zed":9}` {
		t.Fatalf("struct fields not canonically ordered: %s", out)
	}
}

func TestCanonicalHashDeterministic(t *testing.T) {
	a, err := CanonicalHash(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	b, err := CanonicalHash(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("hash depends on key order: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, HashPrefix) {
		t.Fatalf("missing prefix: %s", a)
	}
}

func TestHashBytesPrefix(t *testing.T) {
	h := HashBytes([]byte("ledger"))
	if !strings.HasPrefix(h, "sha256:") || len(h) != len("sha256:")+64 {
		t.Fatalf("malformed hash: %s", h)
	}
}

func TestNormalizeText(t *testing.T) {
	// U+00E9 vs e + U+0301 are the same character in NFC.
	composed := "résumé"
	decomposed := "résumé"
	if NormalizeText(composed) != NormalizeText(decomposed) {
		t.Fatal("NFC normalization should unify canonically equal strings")
	}
}

func TestNormalizeTextStableHash(t *testing.T) {
	h1, err := CanonicalHash(map[string]string{"narrative": NormalizeText("café")})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := CanonicalHash(map[string]string{"narrative": NormalizeText("café")})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("normalized inputs must hash identically")
	}
}
