package derivative

import (
	"testing"

	"github.com/mediakit-go/mediakit/pkg/errors"
)

type fakeAsset struct {
	main bool
	typ  string
}

func (f fakeAsset) IsMain() bool      { return f.main }
func (f fakeAsset) TypeValue() string { return f.typ }

func TestApplies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		meta  Meta
		asset fakeAsset
		want  bool
	}{
		{"no gates", Meta{}, fakeAsset{}, true},
		{"only for main, asset is main", Meta{OnlyForMain: true}, fakeAsset{main: true}, true},
		{"only for main, asset not main", Meta{OnlyForMain: true}, fakeAsset{}, false},
		{"type matches", Meta{ForTypes: []string{"gallery"}}, fakeAsset{typ: "gallery"}, true},
		{"type excluded", Meta{ForTypes: []string{"gallery"}}, fakeAsset{typ: "avatar"}, false},
		{"untyped asset passes type gate", Meta{ForTypes: []string{"gallery"}}, fakeAsset{}, true},
		{"both gates pass", Meta{OnlyForMain: true, ForTypes: []string{"gallery"}}, fakeAsset{main: true, typ: "gallery"}, true},
		{"main gate fails first", Meta{OnlyForMain: true, ForTypes: []string{"gallery"}}, fakeAsset{typ: "gallery"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Applies(tc.meta, tc.asset); got != tc.want {
				t.Fatalf("Applies(%+v, %+v) = %v, want %v", tc.meta, tc.asset, got, tc.want)
			}
		})
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	if OutcomeGenerated.String() != "generated" || OutcomeSkipped.String() != "skipped" || OutcomeCopied.String() != "copied" {
		t.Fatal("unexpected outcome strings")
	}
}

func TestErrUnknown(t *testing.T) {
	t.Parallel()

	err := ErrUnknown("huge")
	if !errors.Is(err, errors.CodeUnknownDerivative) {
		t.Fatalf("expected UNKNOWN_DERIVATIVE, got %v", err)
	}
}
