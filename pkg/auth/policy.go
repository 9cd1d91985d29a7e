package auth

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	"github.com/fsnotify/fsnotify"

	"github.com/assethub/assethub/pkg/observability"
)

//go:embed rbac_model.conf
var defaultModelText string

//go:embed rbac_policy.csv
var defaultPolicyText string

const (
	policyModelFile = "model.conf"
	policyRulesFile = "policy.csv"
)

// PolicyStore holds the immutable static policy text and mints isolated
// evaluator instances from it. The store is the only thing shared between
// requests; every Identity gets its own PolicyEngine, so transient role
// grants never leak across requests.
type PolicyStore struct {
	mu         sync.RWMutex
	modelText  string
	policyText string
	logger     *observability.Logger
}

// NewPolicyStore creates a store backed by the packaged model and policy.
func NewPolicyStore(logger *observability.Logger) *PolicyStore {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &PolicyStore{
		modelText:  defaultModelText,
		policyText: defaultPolicyText,
		logger:     logger,
	}
}

// LoadDir replaces the packaged policy with model.conf and policy.csv from dir.
func (s *PolicyStore) LoadDir(dir string) error {
	modelBytes, err := os.ReadFile(filepath.Join(dir, policyModelFile))
	if err != nil {
		return fmt.Errorf("failed to read policy model: %w", err)
	}
	policyBytes, err := os.ReadFile(filepath.Join(dir, policyRulesFile))
	if err != nil {
		return fmt.Errorf("failed to read policy rules: %w", err)
	}

	// Validate before swapping in
	if _, err := newEnforcer(string(modelBytes), string(policyBytes)); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	s.mu.Lock()
	s.modelText = string(modelBytes)
	s.policyText = string(policyBytes)
	s.mu.Unlock()

	s.logger.WithField("dir", dir).Info("policy loaded from override directory")
	return nil
}

// Watch reloads the override directory whenever its files change. Invalid
// updates are rejected and the previous policy stays active.
func (s *PolicyStore) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if name != policyModelFile && name != policyRulesFile {
					continue
				}
				if err := s.LoadDir(dir); err != nil {
					s.logger.WithError(err).Warn("policy reload rejected, keeping previous policy")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.WithError(err).Warn("policy watcher error")
			}
		}
	}()

	return nil
}

// NewEngine builds a fresh evaluator seeded from the current static policy.
// The static model is small, so per-request construction is cheap and buys
// full isolation of transient role grants.
func (s *PolicyStore) NewEngine() (*PolicyEngine, error) {
	s.mu.RLock()
	modelText, policyText := s.modelText, s.policyText
	s.mu.RUnlock()

	enforcer, err := newEnforcer(modelText, policyText)
	if err != nil {
		return nil, err
	}
	return &PolicyEngine{enforcer: enforcer}, nil
}

// PolicyEngine answers (subject, object, action) questions against the static
// rules plus any transient role grants registered on this instance. Unknown
// tuples evaluate to false; the engine itself never raises on a miss.
type PolicyEngine struct {
	enforcer *casbin.Enforcer
}

// AddRoleForSubject registers a transient grant scoped to this engine instance.
func (p *PolicyEngine) AddRoleForSubject(subject string, role RoleRef) error {
	if _, err := p.enforcer.AddRoleForUser(subject, role.String()); err != nil {
		return fmt.Errorf("failed to grant role %s to %s: %w", role, subject, err)
	}
	return nil
}

// HasRole reports whether the subject holds the role directly or through the
// role hierarchy.
func (p *PolicyEngine) HasRole(subject, role string) bool {
	direct, err := p.enforcer.HasRoleForUser(subject, role)
	if err == nil && direct {
		return true
	}
	for _, implicit := range p.ImplicitRoles(subject) {
		if implicit == role {
			return true
		}
	}
	return false
}

// Enforce evaluates whether any rule allows (subject, object, action),
// honoring the role hierarchy. Evaluation errors are treated as denial.
func (p *PolicyEngine) Enforce(subject, object, action string) bool {
	allowed, err := p.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false
	}
	return allowed
}

// ImplicitRoles returns every role reachable from the subject's grants via
// the hierarchy, for diagnostics and introspection.
func (p *PolicyEngine) ImplicitRoles(subject string) []string {
	roles, err := p.enforcer.GetImplicitRolesForUser(subject)
	if err != nil {
		return nil
	}
	return roles
}

func newEnforcer(modelText, policyText string) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("invalid policy model: %w", err)
	}
	enforcer, err := casbin.NewEnforcer(m, &lineAdapter{text: policyText})
	if err != nil {
		return nil, fmt.Errorf("failed to build policy enforcer: %w", err)
	}
	// Transient grants live only in this instance; nothing persists back.
	enforcer.EnableAutoSave(false)
	return enforcer, nil
}

// lineAdapter loads csv policy lines from an in-memory string. The evaluator
// is rebuilt per request, so nothing is ever written back.
type lineAdapter struct {
	text string
}

func (a *lineAdapter) LoadPolicy(m model.Model) error {
	for _, line := range strings.Split(a.text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := persist.LoadPolicyLine(line, m); err != nil {
			return fmt.Errorf("invalid policy line %q: %w", line, err)
		}
	}
	return nil
}

func (a *lineAdapter) SavePolicy(m model.Model) error {
	return fmt.Errorf("policy is read-only")
}

func (a *lineAdapter) AddPolicy(sec string, ptype string, rule []string) error {
	return fmt.Errorf("policy is read-only")
}

func (a *lineAdapter) RemovePolicy(sec string, ptype string, rule []string) error {
	return fmt.Errorf("policy is read-only")
}

func (a *lineAdapter) RemoveFilteredPolicy(sec string, ptype string, fieldIndex int, fieldValues ...string) error {
	return fmt.Errorf("policy is read-only")
}
