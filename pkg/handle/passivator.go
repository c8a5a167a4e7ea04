package handle

import (
	"fmt"
	"sync"

	"github.com/morezero/beanserver/pkg/token"
)

// Passivator holds live handles for same-process passivation. Each token
// restores exactly once.
type Passivator struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func NewPassivator() *Passivator {
	return &Passivator{handles: make(map[string]*Handle)}
}

// Put stores h and returns its token.
func (p *Passivator) Put(h *Handle) (string, error) {
	tok, err := token.New()
	if err != nil {
		return "", fmt.Errorf("handle:passivator - mint token: %w", err)
	}
	p.mu.Lock()
	p.handles[tok] = h
	p.mu.Unlock()
	return tok, nil
}

// Take removes and returns the handle stored under tok.
func (p *Passivator) Take(tok string) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[tok]
	if !ok {
		return nil, fmt.Errorf("handle:passivator - %s: %w", tok, ErrUnknownToken)
	}
	delete(p.handles, tok)
	return h, nil
}

// Forget drops the handle stored under tok without restoring it.
func (p *Passivator) Forget(tok string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handles[tok]
	delete(p.handles, tok)
	return ok
}

// ForgetDeployment drops every handle whose proxy belongs to deploymentID and
// returns how many were dropped. Called when the deployment is undeployed.
func (p *Passivator) ForgetDeployment(deploymentID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for tok, h := range p.handles {
		if h.Handle().DeploymentID == deploymentID {
			delete(p.handles, tok)
			n++
		}
	}
	return n
}

// Len returns the number of passivated handles.
func (p *Passivator) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
