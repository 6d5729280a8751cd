package sha256

import "testing"

func TestArticleHashDistinguishesSources(t *testing.T) {
	t.Parallel()

	url := "https://example.com/a"
	if ArticleHash("src-1", url) == ArticleHash("src-2", url) {
		t.Fatal("same url from different sources must hash differently")
	}
	if ArticleHash("src-1", url) != ArticleHash("src-1", url) {
		t.Fatal("article hash must be stable")
	}
}

func TestPairHashOrderIndependent(t *testing.T) {
	t.Parallel()

	if PairHash("Deprem oldu", "Son dakika") != PairHash("Son dakika", "Deprem oldu") {
		t.Fatal("pair hash must not depend on argument order")
	}
	if PairHash("A", "B") == PairHash("A", "C") {
		t.Fatal("distinct pairs must hash differently")
	}
}
