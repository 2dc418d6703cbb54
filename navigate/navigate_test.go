package navigate

import (
	"testing"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
)

func TestDefaultResolver(t *testing.T) {
	companyID := int64(4)
	owner := &auth.User{ID: 1, Role: auth.RoleCompanyOwner, CompanyID: &companyID}
	worker := &auth.User{ID: 2, Role: auth.RoleWorker}
	clinic := &auth.Clinic{ID: 7}

	tests := []struct {
		name    string
		state   auth.AuthState
		session *auth.AuthSession
		want    string
	}{
		{"loading", auth.StateLoading, nil, PathLoading},
		{"unauthenticated", auth.StateUnauthenticated, nil, PathLogin},
		{"clinic selected", auth.StateClinicSelected, &auth.AuthSession{Clinic: clinic}, PathClinicLogin},
		{"setup required", auth.StateSetupRequired, &auth.AuthSession{IsProviderAuth: true}, PathSetup},
		{"owner without clinic", auth.StateAuthenticated, &auth.AuthSession{User: owner}, PathControlCenter},
		{"owner in clinic", auth.StateAuthenticated, &auth.AuthSession{User: owner, Clinic: clinic}, PathDashboard},
		{"worker in clinic", auth.StateAuthenticated, &auth.AuthSession{User: worker, Clinic: clinic}, PathDashboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultResolver(tt.state, tt.session))
		})
	}
}

func TestNavigatorFunc(t *testing.T) {
	var got string
	nav := NavigatorFunc(func(path string) { got = path })
	nav.NavigateTo("/login")
	assert.Equal(t, "/login", got)
}

func TestAttachNilArguments(t *testing.T) {
	unsubscribe := Attach(nil, NavigatorFunc(func(string) {}), nil)
	assert.NotNil(t, unsubscribe)
	unsubscribe()
}
