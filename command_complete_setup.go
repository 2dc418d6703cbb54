package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
)

// CompleteSetupMessage provisions the company and owner account for a fresh
// provider identity sitting in StateSetupRequired.
type CompleteSetupMessage struct {
	CompanyName string `json:"company_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

func (m CompleteSetupMessage) Type() string { return "account.setup.complete" }

func (m CompleteSetupMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.CompanyName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.LastName, validation.Length(0, 200)),
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Phone, validation.Length(0, 20)),
	)
}

// CompleteSetupHandler creates the backend records and re-adopts the provider
// session so the machine can move from SetupRequired into Authenticated.
type CompleteSetupHandler struct {
	backend Backend
	machine *StateMachine
}

// NewCompleteSetupHandler wires the setup command to its collaborators.
func NewCompleteSetupHandler(backend Backend, machine *StateMachine) *CompleteSetupHandler {
	return &CompleteSetupHandler{backend: backend, machine: machine}
}

func (h *CompleteSetupHandler) Execute(ctx context.Context, event CompleteSetupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account setup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *CompleteSetupHandler) execute(ctx context.Context, event CompleteSetupMessage) error {
	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid setup payload")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	company := &Company{Name: event.CompanyName}
	// Derive a stable external ref from the owner email so a retried setup
	// does not create a second company.
	if ref, err := hashid.NewUUID(event.Email); err == nil {
		company.ExternalRef = ref.String()
	}

	company, err := h.backend.CreateCompany(ctx, company)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "could not create company")
	}

	user := &User{
		Email:     event.Email,
		FirstName: event.FirstName,
		LastName:  event.LastName,
		Role:      RoleCompanyOwner,
		CompanyID: &company.ID,
	}

	if _, err := h.backend.CreateUser(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create owner user")
	}

	if err := h.machine.Refresh(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "setup created records but session refresh failed")
	}

	return nil
}
