package flow

import (
	"fmt"
	"os"
	"strings"

	"easypath/internal/errs"

	jsoniter "github.com/json-iterator/go"
)

// LoadFile reads a Flow JSON file from disk and converts it (accepting
// either the engine-native or authoring "canvas" form), per SPEC_FULL §6's
// `GET /flow/load?file_path=…` endpoint.
func LoadFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "read flow file", err)
	}
	return Convert(data)
}

// canvasNode is the authoring-UI shape: node-level fields live under
// "data", positions/ids are UI concerns irrelevant to the engine.
type canvasNode struct {
	ID   string                  `json:"id"`
	Type string                  `json:"type"`
	Data canvasNodeData          `json:"data"`
}

type canvasNodeData struct {
	NodeType               string                         `json:"nodeType"`
	Prompt                 Prompt                         `json:"prompt"`
	IsStart                bool                           `json:"isStart"`
	IsEnd                  bool                           `json:"isEnd"`
	UseLLM                 bool                           `json:"useLlm"`
	IsGlobal               bool                           `json:"isGlobal"`
	AutoReturnToPrevious   bool                           `json:"autoReturnToPrevious"`
	ExtractVars            []VariableExtraction           `json:"extractVars"`
	Temperature            float64                        `json:"temperature"`
	SkipUserResponse       bool                           `json:"skipUserResponse"`
	LoopEnabled            bool                           `json:"loopEnabled"`
	LoopCondition          string                         `json:"loopCondition"`
	OverridesGlobalPathway bool                           `json:"overridesGlobalPathway"`
}

type canvasEdge struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	Label       string `json:"label"`
	Description string `json:"description"`
	ElseOption  bool   `json:"elseOption"`
}

type canvasGlobalConfig struct {
	Objective string `json:"objective"`
	Tone      string `json:"tone"`
	Language  string `json:"language"`
	Behaviour string `json:"behaviour"`
	Values    string `json:"values"`
}

type canvasForm struct {
	Nodes        []canvasNode       `json:"nodes"`
	Edges        []canvasEdge       `json:"edges"`
	GlobalConfig canvasGlobalConfig `json:"globalConfig"`
}

// IsCanvasForm sniffs whether raw is the authoring "canvas" document
// (top-level "edges" key) rather than the engine-native form
// (top-level "connections" key), per SPEC_FULL §6.
func IsCanvasForm(raw jsoniter.RawMessage) bool {
	var probe map[string]jsoniter.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, hasEdges := probe["edges"]
	_, hasConnections := probe["connections"]
	return hasEdges && !hasConnections
}

// Convert decodes raw, transparently handling either the engine-native form
// or the authoring canvas form, always returning a validated Flow.
func Convert(raw jsoniter.RawMessage) (*Flow, error) {
	if !IsCanvasForm(raw) {
		return Parse(raw)
	}

	var doc canvasForm
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("flow: invalid canvas JSON: %w", err)
	}

	f := &Flow{
		Objective: doc.GlobalConfig.Objective,
		Tone:      doc.GlobalConfig.Tone,
		Language:  doc.GlobalConfig.Language,
		Behaviour: doc.GlobalConfig.Behaviour,
		Values:    doc.GlobalConfig.Values,
	}

	for _, cn := range doc.Nodes {
		nodeType := NodeType(strings.ToLower(cn.Data.NodeType))
		if nodeType == "" {
			nodeType = NodeNormal
		}
		n := Node{
			ID:                     cn.ID,
			NodeType:               nodeType,
			Prompt:                 cn.Data.Prompt,
			IsStart:                cn.Data.IsStart || strings.EqualFold(cn.Type, "start"),
			IsEnd:                  cn.Data.IsEnd || strings.EqualFold(cn.Type, "end"),
			UseLLM:                 cn.Data.UseLLM,
			IsGlobal:               cn.Data.IsGlobal,
			AutoReturnToPrevious:   cn.Data.AutoReturnToPrevious,
			ExtractVars:            cn.Data.ExtractVars,
			Temperature:            cn.Data.Temperature,
			SkipUserResponse:       cn.Data.SkipUserResponse,
			LoopEnabled:            cn.Data.LoopEnabled,
			LoopCondition:          cn.Data.LoopCondition,
			OverridesGlobalPathway: cn.Data.OverridesGlobalPathway,
		}
		if n.IsStart {
			f.FirstNodeID = n.ID
		}
		f.Nodes = append(f.Nodes, n)
	}

	for _, ce := range doc.Edges {
		f.Connections = append(f.Connections, Connection{
			ID:          ce.ID,
			Label:       ce.Label,
			Description: ce.Description,
			ElseOption:  ce.ElseOption,
			Source:      ce.Source,
			Target:      ce.Target,
		})
	}

	f.Prepare()
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}
