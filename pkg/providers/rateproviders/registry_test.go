package rateproviders_test

import (
	"testing"

	"github.com/bher20/ratehub/pkg/providers"
	"github.com/bher20/ratehub/pkg/providers/rateproviders"
	"github.com/bher20/ratehub/pkg/providers/rateproviders/bog"
	"github.com/bher20/ratehub/pkg/providers/rateproviders/exchangerateapi"
	"github.com/bher20/ratehub/pkg/providers/rateproviders/fixer"
)

func TestListIsPriorityOrdered(t *testing.T) {
	got := rateproviders.List()
	want := []string{bog.Key, exchangerateapi.Key, fixer.Key}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBuildSkipsProvidersWithoutKeys(t *testing.T) {
	sources, err := rateproviders.Build(map[string]rateproviders.Options{
		fixer.Key: {APIKey: "abc"},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected bog and fixer, got %d sources", len(sources))
	}
	if sources[0].Key() != bog.Key || sources[1].Key() != fixer.Key {
		t.Errorf("unexpected order: %s, %s", sources[0].Key(), sources[1].Key())
	}
	if sources[1].Type() != providers.ProviderTypePivot {
		t.Errorf("fixer should be a pivot provider, got %s", sources[1].Type())
	}
}

func TestBuildHonoursExplicitOrder(t *testing.T) {
	sources, err := rateproviders.Build(map[string]rateproviders.Options{
		exchangerateapi.Key: {APIKey: "k"},
	}, []string{exchangerateapi.Key, bog.Key}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(sources) != 2 || sources[0].Key() != exchangerateapi.Key {
		t.Fatalf("explicit order not respected: %v", sources)
	}
}

func TestBuildUnknownProvider(t *testing.T) {
	if _, err := rateproviders.Build(nil, []string{"nope"}, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
