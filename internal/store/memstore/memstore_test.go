package memstore

import (
	"context"
	"testing"

	"notif/internal/domain"
)

func TestRemoveByDeviceTokensDeletesOnlyMatchingTokens(t *testing.T) {
	s := New()
	s.SeedInstallations("variant1", []domain.Installation{
		{ID: "i1", Token: "keep", VariantID: "variant1"},
		{ID: "i2", Token: "bad1", VariantID: "variant1"},
		{ID: "i3", Token: "bad2", VariantID: "variant1"},
	})

	if err := s.RemoveByDeviceTokens(context.Background(), "variant1", []string{"bad1", "bad2"}); err != nil {
		t.Fatalf("RemoveByDeviceTokens: %v", err)
	}

	page, err := s.ListInstallationsPage(context.Background(), "variant1", domain.InstallationFilter{}, "", 10)
	if err != nil {
		t.Fatalf("ListInstallationsPage: %v", err)
	}
	if len(page.Installations) != 1 || page.Installations[0].Token != "keep" {
		t.Fatalf("expected only the non-rejected installation to remain, got %+v", page.Installations)
	}
}

func TestRemoveByDeviceTokensOtherVariantsUnaffected(t *testing.T) {
	s := New()
	s.SeedInstallations("variant1", []domain.Installation{{ID: "i1", Token: "shared", VariantID: "variant1"}})
	s.SeedInstallations("variant2", []domain.Installation{{ID: "i2", Token: "shared", VariantID: "variant2"}})

	if err := s.RemoveByDeviceTokens(context.Background(), "variant1", []string{"shared"}); err != nil {
		t.Fatalf("RemoveByDeviceTokens: %v", err)
	}

	page, err := s.ListInstallationsPage(context.Background(), "variant2", domain.InstallationFilter{}, "", 10)
	if err != nil {
		t.Fatalf("ListInstallationsPage: %v", err)
	}
	if len(page.Installations) != 1 {
		t.Fatalf("expected variant2's installation to survive, got %+v", page.Installations)
	}
}
