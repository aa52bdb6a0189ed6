package tokenizer

import "testing"

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The login page is crashing on Safari")
	want := []string{"login", "page", "crash", "safari"}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %v", len(tokens), tokens, want)
	}
	for i, tok := range tokens {
		if tok.Term != want[i] {
			t.Errorf("token %d = %q, want %q", i, tok.Term, want[i])
		}
		if tok.Position != i {
			t.Errorf("token %d position = %d", i, tok.Position)
		}
	}
}

func TestTokenizeDropsShortAndStopWords(t *testing.T) {
	if got := Tokenize("a an the x y"); len(got) != 0 {
		t.Errorf("Tokenize() = %v, want empty", got)
	}
}

func TestFieldTerm(t *testing.T) {
	if got := FieldTerm("status", " In Progress "); got != "status=in progress" {
		t.Errorf("FieldTerm() = %q", got)
	}
	if !IsFieldTerm(FieldTerm("labels", "ui")) {
		t.Error("field term not recognised")
	}
	for _, tok := range Tokenize("status=open") {
		if IsFieldTerm(tok.Term) {
			t.Errorf("text token %q looks like a field term", tok.Term)
		}
	}
}
