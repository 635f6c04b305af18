package hovi

import "strings"

// ProofState is the lifecycle state of a proof exchange as reported by the platform.
type ProofState string

const (
	ProofStatePending   ProofState = "pending"
	ProofStateDone      ProofState = "done"
	ProofStateAbandoned ProofState = "abandoned"
)

// ProofRecord is a proof exchange as returned by the verification endpoints. Only the
// fields this service reads are mapped.
type ProofRecord struct {
	ProofExchangeID      string                `json:"proofExchangeId"`
	ConnectionID         string                `json:"connectionId,omitempty"`
	State                ProofState            `json:"state"`
	IsVerified           bool                  `json:"isVerified"`
	PresentationExchange *PresentationExchange `json:"presentationExchange,omitempty"`
}

type PresentationExchange struct {
	Presentation *Presentation `json:"presentation,omitempty"`
}

type Presentation struct {
	AnonCreds *AnonCredsPresentation `json:"anoncreds,omitempty"`
}

type AnonCredsPresentation struct {
	RequestedProof RequestedProof `json:"requested_proof"`
	Identifiers    []Identifier   `json:"identifiers"`
}

type RequestedProof struct {
	RevealedAttrs      map[string]RevealedAttr      `json:"revealed_attrs"`
	RevealedAttrGroups map[string]RevealedAttrGroup `json:"revealed_attr_groups,omitempty"`
}

type RevealedAttr struct {
	SubProofIndex int    `json:"sub_proof_index"`
	Raw           string `json:"raw"`
	Encoded       string `json:"encoded"`
}

type RevealedAttrGroup struct {
	SubProofIndex int                  `json:"sub_proof_index"`
	Values        map[string]AttrValue `json:"values"`
}

type AttrValue struct {
	Raw     string `json:"raw"`
	Encoded string `json:"encoded"`
}

// Identifier links a sub proof to the schema and credential definition it was built from.
type Identifier struct {
	SchemaID  string  `json:"schema_id"`
	CredDefID string  `json:"cred_def_id"`
	RevRegID  *string `json:"rev_reg_id,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
}

// Resolved reports whether the exchange finished with a cryptographically valid proof.
func (p *ProofRecord) Resolved() bool {
	return p.State == ProofStateDone && p.IsVerified
}

func (p *ProofRecord) anonCreds() *AnonCredsPresentation {
	if p.PresentationExchange == nil || p.PresentationExchange.Presentation == nil {
		return nil
	}
	return p.PresentationExchange.Presentation.AnonCreds
}

// RevealedAttributes flattens the revealed attributes into name -> raw value.
// Single attributes are keyed by their referent, grouped attributes by attribute name.
func (p *ProofRecord) RevealedAttributes() map[string]string {
	revealed := make(map[string]string)
	ac := p.anonCreds()
	if ac == nil {
		return revealed
	}
	for referent, attr := range ac.RequestedProof.RevealedAttrs {
		revealed[referent] = attr.Raw
	}
	for _, group := range ac.RequestedProof.RevealedAttrGroups {
		for name, value := range group.Values {
			revealed[name] = value.Raw
		}
	}
	return revealed
}

// CredentialDefinitionIDs returns the distinct credential definitions the proof references.
func (p *ProofRecord) CredentialDefinitionIDs() []string {
	ac := p.anonCreds()
	if ac == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(ac.Identifiers))
	for _, id := range ac.Identifiers {
		credDefID := strings.TrimSpace(id.CredDefID)
		if credDefID == "" {
			continue
		}
		if _, ok := seen[credDefID]; ok {
			continue
		}
		seen[credDefID] = struct{}{}
		ids = append(ids, credDefID)
	}
	return ids
}
