package credential

import (
	"context"
	"fmt"
	"strings"

	"github.com/msteinert/pam/v2"

	"github.com/gascity-labs/authbroker/internal/brokererr"
)

// PAMProvider drives a single PAM transaction through the Provider
// lifecycle. It is not safe for concurrent use; the helper owns exactly
// one PAMProvider per login attempt.
type PAMProvider struct {
	service string
	tx      *pam.Transaction
	state   State
	silent  bool
}

var _ Provider = (*PAMProvider)(nil)

// NewPAMProvider returns a Provider backed by the named PAM service
// (e.g. "sddm", kept here as "authbroker" — see SPEC_FULL.md §4.1).
func NewPAMProvider(service string, silent bool) *PAMProvider {
	return &PAMProvider{service: service, silent: silent, state: Clean}
}

func (p *PAMProvider) State() State { return p.state }

func (p *PAMProvider) flags(extra pam.Flags) pam.Flags {
	if p.silent {
		return extra | pam.Silent
	}
	return extra
}

// Authenticate starts the PAM transaction (pam_start) and runs
// pam_authenticate. Echo-off (password) and echo-on (user name) prompts
// are both answered through conv.Prompt, so the Conversation decides what
// to hand over, including refusing real prompts on a passwordless login;
// error and info text goes to conv.Info.
func (p *PAMProvider) Authenticate(ctx context.Context, req Request, conv Conversation) error {
	tx, err := pam.StartFunc(p.service, req.User, func(style pam.Style, msg string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return conv.Prompt(ctx, false, msg)
		case pam.PromptEchoOn:
			return conv.Prompt(ctx, true, msg)
		case pam.ErrorMsg:
			conv.Info(ctx, true, msg)
			return "", nil
		case pam.TextInfo:
			conv.Info(ctx, false, msg)
			return "", nil
		default:
			return "", fmt.Errorf("credential: unsupported PAM conversation style %v", style)
		}
	})
	if err != nil {
		return brokererr.New(brokererr.ProviderError, "pam_start", err)
	}
	p.tx = tx
	p.state = Started

	if req.Display != "" {
		if err := p.tx.SetItem(pam.Tty, req.Display); err != nil {
			return brokererr.New(brokererr.ProviderError, "pam_set_item(tty)", err)
		}
		if err := p.tx.SetItem(pam.XDisplay, req.Display); err != nil {
			return brokererr.New(brokererr.ProviderError, "pam_set_item(xdisplay)", err)
		}
	}

	if err := p.tx.Authenticate(p.flags(0)); err != nil {
		return brokererr.New(brokererr.AuthRejected, "pam_authenticate", err)
	}
	return nil
}

// AccountValid runs pam_acct_mgmt and, on PAM_NEW_AUTHTOK_REQD, forces a
// token change via pam_chauthtok — the same fallback the reference
// acctMgmt() performed.
func (p *PAMProvider) AccountValid(ctx context.Context, conv Conversation) error {
	if p.tx == nil {
		return brokererr.New(brokererr.ProviderError, "acct_mgmt", fmt.Errorf("credential: transaction not started"))
	}
	err := p.tx.AcctMgmt(p.flags(0))
	if err == nil {
		return nil
	}
	if isNewAuthtokRequired(err) {
		if cErr := p.tx.ChangeAuthTok(p.flags(pam.ChangeExpiredAuthtok)); cErr != nil {
			return brokererr.New(brokererr.ProviderError, "pam_chauthtok", cErr)
		}
		return nil
	}
	return brokererr.New(brokererr.AuthRejected, "pam_acct_mgmt", err)
}

func isNewAuthtokRequired(err error) bool {
	return strings.Contains(err.Error(), "new authentication token required")
}

// EstablishCredentials runs pam_setcred(PAM_ESTABLISH_CRED).
func (p *PAMProvider) EstablishCredentials(ctx context.Context) error {
	if p.tx == nil {
		return brokererr.New(brokererr.ProviderError, "setcred", fmt.Errorf("credential: transaction not started"))
	}
	if err := p.tx.SetCred(p.flags(pam.EstablishCred)); err != nil {
		return brokererr.New(brokererr.ProviderError, "pam_setcred(establish)", err)
	}
	return nil
}

// OpenSession runs pam_open_session and advances state to SessionOpened.
func (p *PAMProvider) OpenSession(ctx context.Context) error {
	if p.tx == nil {
		return brokererr.New(brokererr.ProviderError, "open_session", fmt.Errorf("credential: transaction not started"))
	}
	if err := p.tx.OpenSession(p.flags(0)); err != nil {
		return brokererr.New(brokererr.ProviderError, "pam_open_session", err)
	}
	p.state = SessionOpened
	return nil
}

// ReinitializeCredentials runs pam_setcred(PAM_REINITIALIZE_CRED), the
// step performed once the session is open and the mapped user is fixed.
func (p *PAMProvider) ReinitializeCredentials(ctx context.Context) error {
	if p.tx == nil {
		return brokererr.New(brokererr.ProviderError, "setcred", fmt.Errorf("credential: transaction not started"))
	}
	if err := p.tx.SetCred(p.flags(pam.ReinitializeCred)); err != nil {
		return brokererr.New(brokererr.ProviderError, "pam_setcred(reinitialize)", err)
	}
	return nil
}

// MappedUser reads back PAM_USER, which a module is free to rewrite
// during Authenticate (e.g. pam_unix mapping an alias to a real account).
func (p *PAMProvider) MappedUser(ctx context.Context) (string, error) {
	if p.tx == nil {
		return "", brokererr.New(brokererr.ProviderError, "get_item(user)", fmt.Errorf("credential: transaction not started"))
	}
	user, err := p.tx.GetItem(pam.User)
	if err != nil {
		return "", brokererr.New(brokererr.ProviderError, "pam_get_item(user)", err)
	}
	return user, nil
}

func (p *PAMProvider) PutEnv(ctx context.Context, nameValue string) error {
	if p.tx == nil {
		return brokererr.New(brokererr.ProviderError, "putenv", fmt.Errorf("credential: transaction not started"))
	}
	if err := p.tx.PutEnv(nameValue); err != nil {
		return brokererr.New(brokererr.ProviderError, "pam_putenv", err)
	}
	return nil
}

func (p *PAMProvider) Env(ctx context.Context) ([]string, error) {
	if p.tx == nil {
		return nil, nil
	}
	envMap, err := p.tx.GetEnvList()
	if err != nil {
		return nil, brokererr.New(brokererr.ProviderError, "pam_getenvlist", err)
	}
	env := make([]string, 0, len(envMap))
	for k, v := range envMap {
		env = append(env, k+"="+v)
	}
	return env, nil
}

// Cleanup walks the PAM transaction backward to target: SessionOpened
// closes the session and deletes credentials; Started ends the
// transaction. Unlike the reference cleanup(point) loop, every inverse
// step runs even if an earlier one failed — a failed pam_close_session
// must never skip pam_setcred(DELETE) or pam_end, or credentials leak.
// The first error encountered, if any, is returned.
func (p *PAMProvider) Cleanup(ctx context.Context, target State) error {
	if p.state <= target {
		return nil
	}
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if p.state == SessionOpened && target < SessionOpened {
		if err := p.tx.CloseSession(p.flags(0)); err != nil {
			record(brokererr.New(brokererr.ProviderError, "pam_close_session", err))
		}
		if err := p.tx.SetCred(p.flags(pam.DeleteCred)); err != nil {
			record(brokererr.New(brokererr.ProviderError, "pam_setcred(delete)", err))
		}
		p.state = Started
	}
	if p.state == Started && target < Started {
		if err := p.tx.End(); err != nil {
			record(brokererr.New(brokererr.ProviderError, "pam_end", err))
		}
		p.state = Clean
		p.tx = nil
	}
	return firstErr
}
