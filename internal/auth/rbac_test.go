package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/upb/firmauth/models"
)

func TestRolePermissions_Catalog(t *testing.T) {
	tests := []struct {
		role     models.Role
		expected []models.Permission
	}{
		{models.RoleAdmin, models.AllPermissions},
		{models.RolePartner, []models.Permission{
			models.PermResearchRead, models.PermResearchWrite, models.PermResearchDelete,
			models.PermCaseRead, models.PermCaseWrite, models.PermCaseDelete,
			models.PermDocumentRead, models.PermDocumentWrite, models.PermDocumentDelete, models.PermDocumentExport,
			models.PermAnalyticsRead, models.PermAPIAccess, models.PermMCPAccess,
		}},
		{models.RoleAttorney, []models.Permission{
			models.PermResearchRead, models.PermResearchWrite,
			models.PermCaseRead, models.PermCaseWrite,
			models.PermDocumentRead, models.PermDocumentWrite, models.PermDocumentExport,
			models.PermAPIAccess, models.PermMCPAccess,
		}},
		{models.RoleAssociate, []models.Permission{
			models.PermResearchRead, models.PermResearchWrite,
			models.PermCaseRead, models.PermCaseWrite,
			models.PermDocumentRead, models.PermDocumentWrite, models.PermDocumentExport,
			models.PermAPIAccess,
		}},
		{models.RoleParalegal, []models.Permission{
			models.PermResearchRead, models.PermCaseRead, models.PermDocumentRead, models.PermDocumentWrite,
		}},
		{models.RoleGuest, []models.Permission{
			models.PermResearchRead, models.PermCaseRead, models.PermDocumentRead,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got := RolePermissions(tt.role)
			assert.True(t, got.Equal(NewPermissionSet(tt.expected...)), "got %v", got.Slice())
		})
	}

	t.Run("unknown role is empty", func(t *testing.T) {
		assert.Equal(t, 0, RolePermissions(models.Role("janitor")).Len())
	})
}

func TestEffectivePermissions_IsUnion(t *testing.T) {
	custom := []models.Permission{models.PermBillingRead, models.PermCaseRead}
	for _, role := range models.AllRoles {
		eff := EffectivePermissions(role, custom)
		for _, p := range RolePermissions(role).Slice() {
			assert.True(t, eff.Has(p))
		}
		for _, p := range custom {
			assert.True(t, eff.Has(p))
		}
		for _, p := range eff.Slice() {
			assert.True(t, RolePermissions(role).Has(p) || p == models.PermBillingRead || p == models.PermCaseRead)
		}
	}

	t.Run("guest with custom grant", func(t *testing.T) {
		eff := EffectivePermissions(models.RoleGuest, []models.Permission{models.PermCaseWrite})
		assert.Equal(t, []models.Permission{
			models.PermResearchRead, models.PermCaseRead, models.PermCaseWrite, models.PermDocumentRead,
		}, eff.Slice())
	})
}

func TestPermissionSet(t *testing.T) {
	s := NewPermissionSet(models.PermCaseRead, models.PermCaseRead, models.PermAPIAccess)

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.ContainsAll(models.PermCaseRead))
	assert.False(t, s.ContainsAll(models.PermCaseRead, models.PermCaseWrite))
	assert.Equal(t, []models.Permission{models.PermCaseWrite, models.PermFirmAdmin},
		s.Missing(models.PermCaseWrite, models.PermAPIAccess, models.PermFirmAdmin))

	var empty PermissionSet
	assert.False(t, empty.Has(models.PermCaseRead))
	assert.Empty(t, empty.Slice())
	assert.True(t, empty.ContainsAll())
}

func TestPrincipal(t *testing.T) {
	p := Principal{
		UserID:           uuid.New(),
		Role:             models.RoleParalegal,
		Permissions:      RolePermissions(models.RoleParalegal),
		SubscriptionTier: models.TierProfessional,
		CredentialKind:   CredentialSession,
	}

	assert.False(t, p.IsZero())
	assert.True(t, p.HasPermissions(models.PermDocumentWrite))
	assert.False(t, p.HasPermissions(models.PermDocumentWrite, models.PermDocumentDelete))
	assert.Equal(t, []models.Permission{models.PermDocumentDelete}, p.MissingPermissions(models.PermDocumentDelete))
	assert.True(t, p.HasTier(models.TierBasic))
	assert.False(t, p.HasTier(models.TierEnterprise))
	assert.True(t, Principal{}.IsZero())
	assert.True(t, CredentialAPIKey.IsValid())
	assert.False(t, CredentialKind("cookie").IsValid())
}
