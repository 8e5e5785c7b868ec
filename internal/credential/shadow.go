package credential

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/GehirnInc/crypt"
	_ "github.com/GehirnInc/crypt/apr1_crypt"
	_ "github.com/GehirnInc/crypt/md5_crypt"
	_ "github.com/GehirnInc/crypt/sha256_crypt"
	_ "github.com/GehirnInc/crypt/sha512_crypt"

	"github.com/gascity-labs/authbroker/internal/brokererr"
)

// knownHashMagic lists the crypt(3) prefixes this provider can verify,
// matching the algorithm packages imported above. /etc/shadow entries
// using anything else (DES, bcrypt, yescrypt) are rejected cleanly
// instead of reaching crypt.NewFromHash, which panics on an unknown
// magic prefix.
var knownHashMagic = []string{"$1$", "$5$", "$6$", "$apr1$"}

func hasKnownHashMagic(hash string) bool {
	for _, magic := range knownHashMagic {
		if strings.HasPrefix(hash, magic) {
			return true
		}
	}
	return false
}

// ShadowProvider authenticates against /etc/shadow directly, for systems
// built without PAM. It has no separate "establish credentials" or
// account-expiry machinery — the reference getpwnam/getspnam/crypt
// comparison folds verification and account validity into one check — so
// AccountValid and EstablishCredentials are no-ops once Authenticate has
// succeeded; besides Authenticate (to Started) and Cleanup, OpenSession is
// the only state transition.
type ShadowProvider struct {
	shadowPath string
	state      State
	env        map[string]string
	user       string
}

var _ Provider = (*ShadowProvider)(nil)

// NewShadowProvider returns a Provider reading crypt(3) hashes from
// shadowPath (normally "/etc/shadow").
func NewShadowProvider(shadowPath string) *ShadowProvider {
	return &ShadowProvider{shadowPath: shadowPath, state: Clean, env: map[string]string{}}
}

func (s *ShadowProvider) State() State { return s.state }

// Authenticate reads the shadow entry for req.User and compares its
// crypt(3) hash against req.Password (or accepts unconditionally when
// req.Passwordless is set, the same bypass the reference auth path
// implements for auto-login seats).
func (s *ShadowProvider) Authenticate(ctx context.Context, req Request, conv Conversation) error {
	s.state = Started
	s.user = req.User

	if req.Passwordless {
		return nil
	}

	hash, err := s.lookupHash(req.User)
	if err != nil {
		return brokererr.New(brokererr.UserUnknown, "shadow_lookup", err)
	}
	if hash == "" || hash == "!" || hash == "*" || strings.HasPrefix(hash, "!") {
		return brokererr.New(brokererr.AuthRejected, "shadow_compare", fmt.Errorf("credential: account %q is locked", req.User))
	}
	if !hasKnownHashMagic(hash) {
		return brokererr.New(brokererr.ProviderError, "shadow_compare", fmt.Errorf("credential: unsupported hash algorithm for %q", req.User))
	}

	crypter := crypt.NewFromHash(hash)
	if err := crypter.Verify(hash, []byte(req.Password)); err != nil {
		return brokererr.New(brokererr.AuthRejected, "shadow_compare", err)
	}
	return nil
}

func (s *ShadowProvider) lookupHash(user string) (string, error) {
	f, err := os.Open(s.shadowPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 2 {
			continue
		}
		if fields[0] == user {
			return fields[1], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("credential: no shadow entry for %q", user)
}

func (s *ShadowProvider) AccountValid(ctx context.Context, conv Conversation) error {
	return nil
}

func (s *ShadowProvider) EstablishCredentials(ctx context.Context) error {
	return nil
}

func (s *ShadowProvider) ReinitializeCredentials(ctx context.Context) error {
	return nil
}

// MappedUser returns the name Authenticate was called with verbatim —
// the shadow backend has no concept of a provider rewriting user names.
func (s *ShadowProvider) MappedUser(ctx context.Context) (string, error) {
	return s.user, nil
}

func (s *ShadowProvider) OpenSession(ctx context.Context) error {
	if s.state != Started {
		return brokererr.New(brokererr.ProviderError, "open_session", fmt.Errorf("credential: cannot open session from state %v", s.state))
	}
	s.state = SessionOpened
	return nil
}

func (s *ShadowProvider) PutEnv(ctx context.Context, nameValue string) error {
	k, v, ok := strings.Cut(nameValue, "=")
	if !ok {
		return fmt.Errorf("credential: malformed env entry %q", nameValue)
	}
	s.env[k] = v
	return nil
}

func (s *ShadowProvider) Env(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.env))
	for k, v := range s.env {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// Cleanup has nothing to undo beyond resetting state: the shadow backend
// holds no OS-level handle analogous to a PAM transaction.
func (s *ShadowProvider) Cleanup(ctx context.Context, target State) error {
	if s.state > target {
		s.state = target
	}
	return nil
}
