package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/internal/model"
)

// Assembly defaults.
const (
	// DefaultPromptBudget is the character ceiling for an assembled prompt.
	DefaultPromptBudget = 24000

	// maxRecordsShown caps how many records a data block renders in full.
	maxRecordsShown = 3
)

// Assembled is the outcome of prompt assembly for one turn.
type Assembled struct {
	Prompt             string
	WebSearchRequested bool
	Chatbot            *model.Chatbot
}

// Assembler walks a chatbot's flow nodes and builds the system prompt.
// Data-access fetches run concurrently on a shared goroutine pool.
type Assembler struct {
	chatbots store.ChatbotStore
	nodes    store.NodeStore
	data     store.DataStore
	pool     *ants.Pool
	budget   int
}

// NewAssembler creates an Assembler. pool may be nil, in which case fetches
// run sequentially. budget <= 0 selects DefaultPromptBudget.
func NewAssembler(factory store.Factory, pool *ants.Pool, budget int) *Assembler {
	if budget <= 0 {
		budget = DefaultPromptBudget
	}
	return &Assembler{
		chatbots: factory.Chatbots(),
		nodes:    factory.Nodes(),
		data:     factory.Data(),
		pool:     pool,
		budget:   budget,
	}
}

// promptBlock is one contribution to the assembled prompt.
type promptBlock struct {
	text string

	// isInstruction marks blocks eligible for priority-based dropping.
	isInstruction bool
	priority      int
}

// parsedNode pairs a stored node with its typed settings.
type parsedNode struct {
	node   *model.FlowNode
	config model.NodeConfig
}

// Assemble builds the prompt for chatbotID. userCtx scopes data-access
// nodes; it may be nil when no end-user identity exists, in which case
// scoped nodes contribute nothing.
func (a *Assembler) Assemble(ctx context.Context, chatbotID string, userCtx *model.UserContext) (*Assembled, error) {
	chatbot, err := a.chatbots.Get(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	nodes, err := a.nodes.ListByChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	parsed := make([]parsedNode, 0, len(nodes))
	for _, node := range nodes {
		config, err := model.ParseNodeSettings(node.NodeType, node.Settings)
		if err != nil {
			logger.Warnw("skipping malformed flow node",
				"chatbot_id", chatbotID, "node_id", node.ID,
				"node_type", node.NodeType, "error", err.Error())
			continue
		}
		parsed = append(parsed, parsedNode{node: node, config: config})
	}

	// Instructions nodes keep their slots in the sequence but their
	// contents are reordered among those slots by descending priority.
	reorderInstructions(parsed)

	dataBlocks := a.fetchDataBlocks(ctx, parsed, userCtx)

	blocks := make([]promptBlock, 0, len(parsed)+1)
	blocks = append(blocks, promptBlock{text: chatbot.BasePromptText()})

	webSearch := false
	for i, p := range parsed {
		switch cfg := p.config.(type) {
		case *model.InstructionsNode:
			blocks = append(blocks, promptBlock{
				text:          cfg.Content,
				isInstruction: true,
				priority:      cfg.Priority,
			})
		case *model.DataAccessNode:
			if dataBlocks[i] != "" {
				blocks = append(blocks, promptBlock{text: dataBlocks[i]})
			}
		case *model.WebSearchNode:
			webSearch = true
		}
	}

	prompt := a.enforceBudget(chatbotID, blocks)

	return &Assembled{
		Prompt:             prompt,
		WebSearchRequested: webSearch,
		Chatbot:            chatbot,
	}, nil
}

// reorderInstructions permutes instructions-node configs among their own
// positions so higher priorities come first. The sort is stable: equal
// priorities stay in creation order.
func reorderInstructions(parsed []parsedNode) {
	var slots []int
	for i, p := range parsed {
		if _, ok := p.config.(*model.InstructionsNode); ok {
			slots = append(slots, i)
		}
	}
	if len(slots) < 2 {
		return
	}

	configs := make([]*model.InstructionsNode, len(slots))
	for i, slot := range slots {
		configs[i] = parsed[slot].config.(*model.InstructionsNode)
	}
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].Priority > configs[j].Priority
	})
	for i, slot := range slots {
		parsed[slot].config = configs[i]
	}
}

// fetchDataBlocks resolves every data_access node concurrently, slotting
// each rendered block by its node index so output order is deterministic.
func (a *Assembler) fetchDataBlocks(ctx context.Context, parsed []parsedNode, userCtx *model.UserContext) []string {
	results := make([]string, len(parsed))

	var wg sync.WaitGroup
	for i, p := range parsed {
		cfg, ok := p.config.(*model.DataAccessNode)
		if !ok {
			continue
		}

		i, cfg := i, cfg
		task := func() {
			defer wg.Done()
			results[i] = a.resolveDataNode(ctx, cfg, userCtx)
		}

		wg.Add(1)
		if a.pool != nil {
			if err := a.pool.Submit(task); err != nil {
				// Pool exhausted or closed; do the work here.
				task()
			}
		} else {
			task()
		}
	}
	wg.Wait()

	return results
}

// resolveDataNode fetches and renders one data_access node. Missing scope
// context and fetch failures fail open to an empty contribution with a
// warning, never an error: a broken data node must not kill the turn.
func (a *Assembler) resolveDataNode(ctx context.Context, cfg *model.DataAccessNode, userCtx *model.UserContext) string {
	filter := store.DataFilter{IncludeArchived: cfg.IncludeArchived}

	switch cfg.Scope {
	case model.ScopeAll:
	case model.ScopeTeamSpecific:
		if userCtx == nil || userCtx.TeamID == "" {
			logger.Warnw("data_access node needs team context, contributing nothing",
				"data_source", cfg.DataSource)
			return ""
		}
		filter.TeamID = userCtx.TeamID
	case model.ScopeUserSpecific:
		if userCtx == nil || userCtx.UserID == "" {
			logger.Warnw("data_access node needs user context, contributing nothing",
				"data_source", cfg.DataSource)
			return ""
		}
		filter.UserID = userCtx.UserID
	}

	records, err := a.data.Fetch(ctx, cfg.DataSource, filter)
	if err != nil {
		logger.Warnw("data_access fetch failed, contributing nothing",
			"data_source", cfg.DataSource, "error", err.Error())
		return ""
	}
	if len(records) == 0 {
		return ""
	}
	return renderDataBlock(cfg.DataSource, records)
}

// renderDataBlock renders records compactly: a bracketed section header,
// then one key: value line set per record. Large collections show only the
// newest few plus a summary line.
func renderDataBlock(source string, records []*model.DataRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Data access] %s", source)

	shown := records
	if len(records) > maxRecordsShown {
		shown = records[:maxRecordsShown]
	}
	for _, record := range shown {
		b.WriteString("\n")
		keys := make([]string, 0, len(record.Payload))
		for k := range record.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, record.Payload[k])
		}
	}
	if len(records) > maxRecordsShown {
		fmt.Fprintf(&b, "\n\n(%d records total, showing newest %d)", len(records), maxRecordsShown)
	}
	return b.String()
}

// enforceBudget joins blocks and applies the character ceiling: whole
// instructions blocks go first, lowest priority first (later ones first on
// ties), then the remainder is trimmed with a warning.
func (a *Assembler) enforceBudget(chatbotID string, blocks []promptBlock) string {
	join := func(bs []promptBlock) string {
		parts := make([]string, 0, len(bs))
		for _, b := range bs {
			parts = append(parts, b.text)
		}
		return strings.Join(parts, "\n\n")
	}

	prompt := join(blocks)
	for len([]rune(prompt)) > a.budget {
		drop := -1
		for i, b := range blocks {
			if !b.isInstruction {
				continue
			}
			if drop == -1 || b.priority <= blocks[drop].priority {
				drop = i
			}
		}
		if drop == -1 {
			break
		}
		logger.Warnw("prompt over budget, dropping instructions block",
			"chatbot_id", chatbotID, "priority", blocks[drop].priority)
		blocks = append(blocks[:drop], blocks[drop+1:]...)
		prompt = join(blocks)
	}

	if runes := []rune(prompt); len(runes) > a.budget {
		logger.Warnw("prompt still over budget after dropping instructions, truncating",
			"chatbot_id", chatbotID, "length", len(runes), "budget", a.budget)
		prompt = string(runes[:a.budget])
	}
	return prompt
}
