package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"easypath/internal/errs"
	"easypath/internal/extractor"
	"easypath/internal/flow"
	"easypath/internal/llmclient"
	"easypath/internal/loopeval"
	"easypath/internal/pathway"
	"easypath/internal/session"
)

const maxUserMessageLength = 10000

// canned user-facing error replies, ported verbatim in spirit from
// original_source's Portuguese-language fallbacks (app/core/orchestrator.py).
const (
	errReplyInvalidInput   = "Desculpe, não consegui processar sua mensagem. Por favor, tente novamente."
	errReplyUnknownNode    = "Erro no fluxo de conversação."
	errReplyGeneration     = "Desculpe, não consegui gerar uma resposta."
	errReplyPathwaySelect  = "Desculpe, ocorreu um erro ao processar sua solicitação."
)

// StepTimings reports the wall-clock cost of one run_step call, per
// SPEC_FULL §4.6's final paragraph.
type StepTimings struct {
	ChooseNext        time.Duration
	GenerateResponse  time.Duration
	LoopEvaluation    time.Duration
	Total             time.Duration
	ChooseNextModel   string
	GenerateModel     string
	LoopEvalModel     string
}

func errorTimings(total time.Duration) StepTimings {
	return StepTimings{
		Total:           total,
		ChooseNextModel: "error",
		GenerateModel:   "error",
		LoopEvalModel:   "error",
	}
}

// Orchestrator composes the Variable Extractor, Loop Evaluator, and Pathway
// Selector into one conversational turn.
type Orchestrator struct {
	LLM       llmclient.LLMClient
	Extractor *extractor.Extractor
	Selector  *pathway.Selector
	LoopEval  *loopeval.Evaluator
}

// New constructs an Orchestrator backed by a single LLMClient shared by all
// of its constituent components.
func New(llm llmclient.LLMClient, maxRetries int) *Orchestrator {
	return &Orchestrator{
		LLM:       llm,
		Extractor: extractor.New(llm, maxRetries),
		Selector:  pathway.New(llm),
		LoopEval:  loopeval.New(llm),
	}
}

// RunStep executes one step of the conversation flow, per SPEC_FULL §4.6's
// 11 ordered steps, emitting events to sink along the way.
func (o *Orchestrator) RunStep(ctx context.Context, f *flow.Flow, sess *session.ChatSession, userMessage string, sink Sink) (string, StepTimings, error) {
	if sink == nil {
		sink = NopSink
	}
	t0 := time.Now()

	// Step 1: validate inputs.
	if err := validateInput(sess, userMessage); err != nil {
		return errReplyInvalidInput, errorTimings(time.Since(t0)), nil
	}

	// Step 2: append user message, emit user_message.
	sess.AddMessage(session.RoleUser, userMessage)
	sink.Emit(newEvent(UserMessage, sess.SessionID, map[string]any{
		"message": userMessage, "node_id": sess.CurrentNodeID,
	}))

	// Step 3: resolve current node.
	currentNode := f.Node(sess.CurrentNodeID)
	if currentNode == nil {
		sink.Emit(newEvent(ErrorEvent, sess.SessionID, map[string]any{
			"reason": fmt.Sprintf("unknown node %q", sess.CurrentNodeID),
		}))
		return errReplyUnknownNode, errorTimings(time.Since(t0)), errs.New(errs.InvariantViolation, "unknown current node")
	}

	// Step 4: variable extraction.
	if len(currentNode.ExtractVars) > 0 {
		extracted := o.Extractor.Extract(ctx, currentNode, sess)
		newNames := sess.MergeVariables(extracted)
		for _, name := range newNames {
			sink.Emit(newEvent(VariableExtracted, sess.SessionID, map[string]any{
				"node_id": currentNode.ID, "name": name, "value": sess.Variables()[name],
			}))
		}

		if extractor.ShouldContinue(currentNode, sess.Variables()) {
			reply := clarificationReply(currentNode, sess.Variables())
			sess.AddMessage(session.RoleAssistant, reply)
			sink.Emit(newEvent(AssistantMessage, sess.SessionID, map[string]any{
				"message": reply, "node_id": currentNode.ID,
			}))
			sink.Emit(newEvent(DecisionStep, sess.SessionID, map[string]any{
				"step_name": "Variable Extraction Loop", "node_id": currentNode.ID,
				"assistant_response": reply,
			}))
			return reply, StepTimings{Total: time.Since(t0), GenerateModel: "none", ChooseNextModel: "none", LoopEvalModel: "none"}, nil
		}
	}

	// Step 5: explicit loop evaluation.
	var loopEvalDur time.Duration
	if currentNode.LoopEnabled && strings.TrimSpace(currentNode.LoopCondition) != "" {
		tLoop := time.Now()
		result := o.LoopEval.ShouldLoop(ctx, currentNode, sess)
		loopEvalDur = time.Since(tLoop)

		if result.ShouldLoop {
			reply, err := generateResponse(ctx, o.LLM, f, sess, currentNode.ID)
			if err != nil {
				return errReplyGeneration, errorTimings(time.Since(t0)), nil
			}
			sink.Emit(newEvent(ResponseGenerated, sess.SessionID, map[string]any{"node_id": currentNode.ID}))
			sess.AddMessage(session.RoleAssistant, reply)
			sink.Emit(newEvent(AssistantMessage, sess.SessionID, map[string]any{
				"message": reply, "node_id": currentNode.ID,
			}))
			sink.Emit(newEvent(DecisionStep, sess.SessionID, map[string]any{
				"step_name": "Explicit Loop Condition", "node_id": currentNode.ID,
				"llm_reasoning": result.Reasoning, "assistant_response": reply,
			}))
			return reply, StepTimings{
				LoopEvaluation: loopEvalDur, Total: time.Since(t0),
				ChooseNextModel: "none",
			}, nil
		}
	}

	// Step 6: choose next node.
	tChoose := time.Now()
	oldNodeID := sess.CurrentNodeID
	history := toLLMMessages(sess)
	nextNodeID, pathwayInfo, err := o.Selector.ChooseNext(ctx, f, history, oldNodeID)
	chooseDur := time.Since(tChoose)
	if err != nil {
		return errReplyPathwaySelect, errorTimings(time.Since(t0)), nil
	}

	sink.Emit(newEvent(NodeExited, sess.SessionID, map[string]any{"node_id": oldNodeID}))
	conn := f.Connection(oldNodeID, nextNodeID)
	pathwayMeta := map[string]any{
		"from": oldNodeID, "to": nextNodeID,
		"score": pathwayInfo.Score, "raw_response": pathwayInfo.RawResponse, "accepted": pathwayInfo.Accepted,
	}
	if conn != nil {
		pathwayMeta["connection_id"] = conn.ID
		pathwayMeta["label"] = conn.Label
	}
	sink.Emit(newEvent(PathwaySelected, sess.SessionID, pathwayMeta))

	// Step 7: enter next node.
	sess.PreviousNodeID = oldNodeID
	sess.CurrentNodeID = nextNodeID
	nextNode := f.Node(nextNodeID)
	if nextNode == nil {
		return errReplyUnknownNode, errorTimings(time.Since(t0)), errs.New(errs.InvariantViolation, "pathway selected unknown node")
	}
	sink.Emit(newEvent(NodeEntered, sess.SessionID, map[string]any{
		"node_id": nextNodeID, "objective": nextNode.Prompt.Objective,
	}))

	// Step 8: generate response.
	tExec := time.Now()
	reply, err := generateResponse(ctx, o.LLM, f, sess, nextNodeID)
	execDur := time.Since(tExec)
	if err != nil {
		return errReplyGeneration, errorTimings(time.Since(t0)), nil
	}
	sink.Emit(newEvent(ResponseGenerated, sess.SessionID, map[string]any{"node_id": nextNodeID}))

	// Step 9: append reply, emit assistant_message and decision_step.
	sess.AddMessage(session.RoleAssistant, reply)
	sink.Emit(newEvent(AssistantMessage, sess.SessionID, map[string]any{
		"message": reply, "node_id": nextNodeID,
	}))
	sink.Emit(newEvent(DecisionStep, sess.SessionID, map[string]any{
		"step_name": "Complete Decision", "node_id": nextNodeID,
		"previous_node_id": oldNodeID, "chosen_pathway": pathwayMeta["label"],
		"assistant_response": reply,
	}))

	// Step 10: auto-return for global nodes.
	if nextNode.AutoReturnToPrevious && sess.PreviousNodeID != "" {
		sess.CurrentNodeID = sess.PreviousNodeID
	}

	return reply, StepTimings{
		ChooseNext:       chooseDur,
		GenerateResponse: execDur,
		LoopEvaluation:   loopEvalDur,
		Total:            time.Since(t0),
	}, nil
}

func validateInput(sess *session.ChatSession, userMessage string) error {
	if strings.TrimSpace(userMessage) == "" {
		return errs.New(errs.InvalidInput, "user message cannot be empty")
	}
	if len(userMessage) > maxUserMessageLength {
		return errs.New(errs.InvalidInput, "user message too long")
	}
	if sess == nil || sess.CurrentNodeID == "" {
		return errs.New(errs.InvalidInput, "session current_node_id cannot be empty")
	}
	return nil
}

func clarificationReply(node *flow.Node, extracted map[string]any) string {
	var missingDescriptions []string
	for _, v := range node.ExtractVars {
		if !v.Required {
			continue
		}
		if _, ok := extracted[v.Name]; !ok {
			missingDescriptions = append(missingDescriptions, v.Description)
		}
	}
	return fmt.Sprintf("Preciso de mais algumas informações. Você poderia me informar: %s?", strings.Join(missingDescriptions, ", "))
}

func toLLMMessages(sess *session.ChatSession) []llmclient.Message {
	recent := sess.RecentMessages(1 << 20)
	out := make([]llmclient.Message, 0, len(recent))
	for _, m := range recent {
		switch m.Role {
		case session.RoleAssistant:
			out = append(out, llmclient.Assistant(m.Content))
		case session.RoleSystem:
			out = append(out, llmclient.System(m.Content))
		default:
			out = append(out, llmclient.User(m.Content))
		}
	}
	return out
}
