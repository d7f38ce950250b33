package model

import (
	"fmt"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/wbt-web-support/chatbot-flow/pkg/errors"
	"github.com/wbt-web-support/chatbot-flow/pkg/utils/json"
)

// Node types.
const (
	NodeTypeInstructions = "instructions"
	NodeTypeDataAccess   = "data_access"
	NodeTypeWebSearch    = "web_search"
)

// Data-access scopes.
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeTeamSpecific Scope = "team_specific"
	ScopeUserSpecific Scope = "user_specific"
)

// recognizedDataSources is the catalog of data sources the service owns
// records for.
var recognizedDataSources = map[string]bool{
	"tasks":         true,
	"business_info": true,
	"departments":   true,
	"playbooks":     true,
	"sop_data":      true,
	"team_leaves":   true,
}

// IsRecognizedDataSource reports whether source is in the catalog.
func IsRecognizedDataSource(source string) bool {
	return recognizedDataSources[source]
}

// RecognizedDataSources lists the catalog for validation messages.
func RecognizedDataSources() []string {
	out := make([]string, 0, len(recognizedDataSources))
	for s := range recognizedDataSources {
		out = append(out, s)
	}
	return out
}

// FlowNode is one step of a chatbot's prompt-assembly flow. Settings is the
// raw JSON as stored; ParseNodeSettings produces the typed view.
type FlowNode struct {
	ID         string  `json:"id" gorm:"primaryKey;type:varchar(26)"`
	ChatbotID  string  `json:"chatbot_id" gorm:"type:varchar(26);index;not null"`
	NodeType   string  `json:"node_type" gorm:"type:varchar(32);not null"`
	Settings   JSONMap `json:"settings,omitempty" gorm:"type:text"`
	OrderIndex int     `json:"order_index" gorm:"default:0"`
	CreatedAt  int64   `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for FlowNode.
func (FlowNode) TableName() string {
	return "flow_nodes"
}

// BeforeCreate assigns a ULID primary key.
func (n *FlowNode) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	return nil
}

// NodeConfig is the typed view of a node's settings. Exactly one of the
// concrete types below implements it per node type.
type NodeConfig interface {
	nodeConfig()
}

// InstructionsNode contributes static prompt text with a priority that
// orders it among other instructions nodes and decides what gets dropped
// first under the prompt budget.
type InstructionsNode struct {
	Content  string `json:"content"`
	Priority int    `json:"priority"`
}

func (InstructionsNode) nodeConfig() {}

// DataAccessNode pulls records from one recognized data source, scoped to
// the caller.
type DataAccessNode struct {
	DataSource      string `json:"data_source"`
	Scope           Scope  `json:"scope"`
	IncludeArchived bool   `json:"include_archived"`
}

func (DataAccessNode) nodeConfig() {}

// WebSearchNode requests the provider's web grounding tool. It carries no
// settings.
type WebSearchNode struct{}

func (WebSearchNode) nodeConfig() {}

// ParseNodeSettings validates and types a node's raw settings. Unknown node
// types and malformed settings return ErrNodeConfig.
func ParseNodeSettings(nodeType string, raw JSONMap) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeInstructions:
		var cfg InstructionsNode
		if err := decodeSettings(raw, &cfg); err != nil {
			return nil, errors.ErrNodeConfig.WithMessage("instructions node: %v", err)
		}
		if cfg.Content == "" {
			return nil, errors.ErrNodeConfig.WithMessage("instructions node: content is required")
		}
		return &cfg, nil

	case NodeTypeDataAccess:
		var cfg DataAccessNode
		if err := decodeSettings(raw, &cfg); err != nil {
			return nil, errors.ErrNodeConfig.WithMessage("data_access node: %v", err)
		}
		if !IsRecognizedDataSource(cfg.DataSource) {
			return nil, errors.ErrNodeConfig.WithMessage("data_access node: unknown data source %q", cfg.DataSource)
		}
		switch cfg.Scope {
		case ScopeAll, ScopeTeamSpecific, ScopeUserSpecific:
		case "":
			cfg.Scope = ScopeAll
		default:
			return nil, errors.ErrNodeConfig.WithMessage("data_access node: unknown scope %q", cfg.Scope)
		}
		return &cfg, nil

	case NodeTypeWebSearch:
		return &WebSearchNode{}, nil

	default:
		return nil, errors.ErrNodeConfig.WithMessage("unknown node type %q", nodeType)
	}
}

// decodeSettings round-trips the settings map through JSON into the typed
// struct so unexpected value shapes surface as decode errors.
func decodeSettings(raw JSONMap, out interface{}) error {
	if raw == nil {
		return fmt.Errorf("settings are required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
