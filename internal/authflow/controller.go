// Package authflow drives the sign-in, sign-up and email verification screens from
// the outcomes reported by an identity.Session.
package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recipereels/backend/internal/identity"
	"github.com/recipereels/backend/internal/logging"
	"github.com/recipereels/backend/internal/metrics"
)

// DefaultDisplayDelay is how long the verified message stays up before navigating.
const DefaultDisplayDelay = 1500 * time.Millisecond

// Authenticator is the part of identity.Session the controller drives.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (identity.Outcome, error)
	Register(ctx context.Context, reg identity.Registration) (identity.Outcome, error)
	ConfirmRegistration(ctx context.Context, identifier, code string) (identity.Outcome, error)
	ResendCode(ctx context.Context, identifier string) (identity.Outcome, error)
}

// challengeChecker is implemented by authenticators that can tell whether a
// challenge came from their latest attempt; identity.Session does.
type challengeChecker interface {
	CheckChallenge(out identity.Outcome) error
}

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	DisplayDelay time.Duration
	Pending      PendingRegistry
	Validator    *Validator
}

// Controller is the state machine behind the auth screens of one user.
type Controller struct {
	auth         Authenticator
	pending      PendingRegistry
	validator    *Validator
	displayDelay time.Duration

	inFlight   atomic.Bool
	generation atomic.Uint64

	mu           sync.Mutex
	state        State
	verification Verification
}

// NewController builds a Controller in the idle state.
func NewController(auth Authenticator, opts Options) *Controller {
	if opts.DisplayDelay <= 0 {
		opts.DisplayDelay = DefaultDisplayDelay
	}
	if opts.Pending == nil {
		opts.Pending = NewPendingCache(24 * time.Hour)
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	return &Controller{
		auth:         auth,
		pending:      opts.Pending,
		validator:    opts.Validator,
		displayDelay: opts.DisplayDelay,
		state:        StateIdle,
	}
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Verification returns a copy of the verification sub-flow.
func (c *Controller) Verification() Verification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verification
}

// Submitting reports whether a submit is pending.
func (c *Controller) Submitting() bool {
	return c.inFlight.Load()
}

// Abandon is called when the user navigates away. Results that arrive afterwards
// are discarded and the flow returns to idle.
func (c *Controller) Abandon() {
	c.generation.Add(1)
	c.mu.Lock()
	c.state = StateIdle
	if c.verification.Status == Verifying {
		_ = c.verification.Advance(Unverified)
	}
	c.mu.Unlock()
}

// SignIn validates the form, authenticates and maps the outcome to the next screen.
func (c *Controller) SignIn(ctx context.Context, form SignInForm) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	form = form.Normalize()
	gen := c.generation.Load()
	if verr := c.validator.SignIn(form); verr != nil {
		return c.settle(ctx, OpSignIn, gen, validationResult(verr))
	}

	c.setState(StateSubmitting)
	out, err := c.auth.Authenticate(ctx, form.Identifier, form.Secret)
	return c.settle(ctx, OpSignIn, gen, c.signInResult(form.Identifier, out, err))
}

func (c *Controller) signInResult(identifier string, out identity.Outcome, err error) Result {
	if err != nil {
		return transportResult(err)
	}

	switch out.Kind {
	case identity.OutcomeSuccess:
		return Result{State: StateAuthenticated, Tokens: out.Tokens, Navigation: &Navigation{Route: RouteHome}}
	case identity.OutcomeChallenge:
		if checker, ok := c.auth.(challengeChecker); ok {
			if err := checker.CheckChallenge(out); err != nil {
				return transportResult(err)
			}
		}
		return challengeResult(identifier, out.Challenge)
	}

	if out.Err != nil && out.Err.Kind == identity.KindUserNotConfirmed {
		c.pending.Add(identifier, identifier)
		return Result{
			State:   StateVerificationPending,
			Message: MsgUserNotConfirmed,
			Err:     out.Err,
			Navigation: &Navigation{Route: RouteVerify, Params: map[string]string{
				"identifier": identifier,
				"email":      identifier,
			}},
		}
	}

	return Result{State: StateFailed, Message: Message(out.Err, OpSignIn), Err: providerErr(out.Err)}
}

func challengeResult(identifier string, ch *identity.Challenge) Result {
	res := Result{State: StateChallengePending, Challenge: ch}
	if ch == nil {
		return res
	}

	switch ch.Kind {
	case identity.ChallengeNewPasswordRequired:
		res.Message = MsgNewPassword
		res.Navigation = &Navigation{Route: RouteChangePassword, Params: map[string]string{"email": identifier}}
	case identity.ChallengeMFARequired, identity.ChallengeMFASetup:
		params := make(map[string]string, len(ch.Parameters)+2)
		for k, v := range ch.Parameters {
			params[k] = v
		}
		params["email"] = identifier
		params["challengeName"] = ch.Name
		route := RouteMFA
		if ch.Kind == identity.ChallengeMFASetup {
			route = RouteMFASetup
		}
		res.Navigation = &Navigation{Route: route, Params: params}
	}
	return res
}

// SignUp validates the form, registers the account and opens the verification flow.
func (c *Controller) SignUp(ctx context.Context, form SignUpForm) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	form = form.Normalize()
	gen := c.generation.Load()
	if verr := c.validator.SignUp(form); verr != nil {
		return c.settle(ctx, OpSignUp, gen, validationResult(verr))
	}

	c.setState(StateSubmitting)
	out, err := c.auth.Register(ctx, identity.Registration{
		Identifier: form.Username,
		Secret:     form.Secret,
		Email:      form.Email,
		Phone:      form.Phone,
	})
	if err != nil {
		return c.settle(ctx, OpSignUp, gen, transportResult(err))
	}
	if out.Kind != identity.OutcomeSuccess || out.Pending == nil {
		return c.settle(ctx, OpSignUp, gen, Result{State: StateFailed, Message: Message(out.Err, OpSignUp), Err: providerErr(out.Err)})
	}

	if out.Pending.Confirmed {
		return c.settle(ctx, OpSignUp, gen, Result{
			State:      StateIdle,
			Message:    MsgAccountReady,
			Navigation: &Navigation{Route: RouteSignIn},
		})
	}

	c.pending.Add(form.Username, form.Email)
	return c.settle(ctx, OpSignUp, gen, Result{
		State: StateVerificationPending,
		Navigation: &Navigation{Route: RouteVerify, Params: map[string]string{
			"identifier": form.Username,
			"email":      form.Email,
		}},
	})
}

// BeginVerification opens the verification screen from navigation parameters.
// A missing identifier sends the user back to sign in.
func (c *Controller) BeginVerification(identifier, email string) (Result, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return stateErrorResult("verification opened without an identifier"), nil
	}
	if email == "" {
		email, _ = c.pending.Lookup(identifier)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verification.Identifier != identifier {
		c.verification = Verification{Identifier: identifier, Email: email, Status: Unverified}
	}
	c.state = StateVerificationPending
	return Result{State: c.state, Verification: c.verification.Status}, nil
}

// Confirm submits the verification code. On success the result navigates home
// after the display delay.
func (c *Controller) Confirm(ctx context.Context, code string) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	gen := c.generation.Load()
	code = strings.TrimSpace(code)

	c.mu.Lock()
	v := c.verification
	switch {
	case v.Identifier == "":
		c.mu.Unlock()
		return c.settle(ctx, OpVerify, gen, stateErrorResult("no verification in progress"))
	case v.Status == Verified:
		c.mu.Unlock()
		return c.settle(ctx, OpVerify, gen, Result{State: StateVerificationPending, Verification: Verified, Message: MsgAlreadyVerified})
	case code == "":
		c.mu.Unlock()
		res := validationResult(&ValidationError{Field: "code", Message: MsgCodeRequired})
		res.State = StateVerificationPending
		return c.settle(ctx, OpVerify, gen, res)
	}
	if err := c.verification.Advance(Verifying); err != nil {
		c.mu.Unlock()
		return c.settle(ctx, OpVerify, gen, stateErrorResult(err.Error()))
	}
	identifier := c.verification.Identifier
	c.mu.Unlock()

	out, err := c.auth.ConfirmRegistration(ctx, identifier, code)
	return c.settle(ctx, OpVerify, gen, c.confirmResult(identifier, out, err))
}

func (c *Controller) confirmResult(identifier string, out identity.Outcome, err error) Result {
	if err != nil {
		res := transportResult(err)
		res.State = StateVerificationPending
		res.Verification = Unverified
		return res
	}

	if out.Kind == identity.OutcomeSuccess {
		c.pending.Remove(identifier)
		return Result{
			State:        StateVerificationPending,
			Verification: Verified,
			Message:      MsgVerified,
			Navigation:   &Navigation{Route: RouteHome, Delay: c.displayDelay},
		}
	}

	res := Result{
		State:        StateVerificationPending,
		Verification: Unverified,
		Message:      Message(out.Err, OpVerify),
		Err:          providerErr(out.Err),
	}
	if out.Err != nil {
		switch out.Err.Kind {
		case identity.KindCodeMismatch:
			res.Verification = Mismatched
		case identity.KindCodeExpired:
			res.Verification = Expired
		}
	}
	return res
}

// Resend asks for a new code for the identifier currently pending verification.
func (c *Controller) Resend(ctx context.Context) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrInFlight
	}
	defer c.inFlight.Store(false)

	gen := c.generation.Load()
	c.mu.Lock()
	identifier := c.verification.Identifier
	status := c.verification.Status
	c.mu.Unlock()

	if identifier == "" {
		return c.settle(ctx, OpResend, gen, stateErrorResult("resend requested without an identifier"))
	}
	if _, ok := c.pending.Lookup(identifier); !ok || status == Verified {
		return c.settle(ctx, OpResend, gen, stateErrorResult("identifier is not pending verification"))
	}

	out, err := c.auth.ResendCode(ctx, identifier)
	if err != nil {
		res := transportResult(err)
		res.State = StateVerificationPending
		return c.settle(ctx, OpResend, gen, res)
	}
	if out.Kind != identity.OutcomeSuccess {
		return c.settle(ctx, OpResend, gen, Result{
			State:   StateVerificationPending,
			Message: Message(out.Err, OpResend),
			Err:     providerErr(out.Err),
		})
	}
	return c.settle(ctx, OpResend, gen, Result{State: StateVerificationPending, Message: MsgCodeResent})
}

// AwaitNavigation blocks for the navigation delay, returning early if ctx ends.
func AwaitNavigation(ctx context.Context, nav *Navigation) error {
	if nav == nil || nav.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(nav.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// settle applies res unless the flow was abandoned since gen was read.
func (c *Controller) settle(ctx context.Context, op Operation, gen uint64, res Result) (Result, error) {
	logger := logging.FromContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation.Load() != gen {
		logger.Info("discarding result for abandoned flow", "operation", string(op), "state", res.State.String())
		return Result{State: c.state}, ErrAbandoned
	}

	c.state = res.State
	c.applyVerification(op, res)
	if op != OpVerify {
		res.Verification = c.verification.Status
	}

	metrics.AuthOutcomes.WithLabelValues(string(op), res.State.String()).Inc()
	if res.Err != nil {
		logger.Warn("auth flow step failed", "operation", string(op), "state", res.State.String(), "error", res.Err)
	} else {
		logger.Info("auth flow step completed", "operation", string(op), "state", res.State.String())
	}
	return res, nil
}

// applyVerification keeps the stored sub-flow in step with a settled result. Callers
// hold c.mu.
func (c *Controller) applyVerification(op Operation, res Result) {
	switch op {
	case OpSignIn, OpSignUp:
		if res.State == StateVerificationPending && res.Navigation != nil {
			c.verification = Verification{
				Identifier: res.Navigation.Params["identifier"],
				Email:      res.Navigation.Params["email"],
				Status:     Unverified,
			}
		}
	case OpVerify:
		if c.verification.Status != Verifying {
			return
		}
		switch res.Verification {
		case Verified:
			_ = c.verification.Advance(Verified)
		case Expired, Mismatched:
			_ = c.verification.Advance(res.Verification)
			_ = c.verification.Advance(Unverified)
		default:
			_ = c.verification.Advance(Unverified)
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func validationResult(verr *ValidationError) Result {
	return Result{State: StateFailed, Message: verr.Message, Err: verr}
}

func transportResult(err error) Result {
	if errors.Is(err, identity.ErrInFlight) {
		return Result{State: StateFailed, Message: MsgUnexpected, Err: ErrInFlight}
	}
	return Result{State: StateFailed, Message: MsgUnexpected, Err: err}
}

func stateErrorResult(reason string) Result {
	return Result{
		State:      StateFailed,
		Message:    MsgNoPendingAccount,
		Err:        &StateError{Reason: reason},
		Navigation: &Navigation{Route: RouteSignIn},
	}
}

func providerErr(pe *identity.ProviderError) error {
	if pe == nil {
		return nil
	}
	return pe
}
