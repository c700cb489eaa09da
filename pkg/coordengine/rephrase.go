package coordengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/agentmesh/mesh/pkg/meshtypes"
)

// messageKey computes the stable key taskmanager.Manager's msg→task binding
// is recorded under (see Manager.UpdateTask's msgKey parameter), so the
// rephrasing stage can look a completed task back up from the memory entry
// it was bound to.
func messageKey(msg meshtypes.LLMResult) string {
	h := sha256.Sum256([]byte(msg.Name + "|" + msg.ContentString()))
	return hex.EncodeToString(h[:])
}

type referenceItem struct {
	label string
	body  string
}

// rephraseForAssignment transforms the reference corpus — the union of the
// latest five non-routine memory entries and every completed TaskEntry
// bound to a result announcement in memory, whether or not it falls inside
// that window — into a self-contained executor brief: abstract, description,
// context, completion criteria, and the rendered brief text itself with
// selected reference entries embedded verbatim as "Task Inputs".
func (e *Engine) rephraseForAssignment(ctx context.Context, state *SessionState, taskDesc, taskAbstract string) (rephraseOutput, string, error) {
	refs := referenceCorpus(state)

	var corpus string
	for i, r := range refs {
		corpus += fmt.Sprintf("[%d] %s: %s\n", i, r.label, r.body)
	}

	prepend := []string{
		personaPrompt(e.Self),
		rephrasePrompt(),
		fmt.Sprintf("Task to rephrase — desc: %s; abstract: %s", taskDesc, taskAbstract),
		corpus,
	}
	result, err := e.Gateway.Generate(ctx, prepend, nil, nil, nil,
		meshtypes.ToolChoiceAuto, meshtypes.ResponseFormatJSONObject, e.modelArgs())
	if err != nil {
		return rephraseOutput{}, "", fmt.Errorf("rephrasing assignment: %w", err)
	}

	var out rephraseOutput
	if err := decodeInto(result.Content, &out); err != nil {
		return rephraseOutput{}, "", fmt.Errorf("%w: decoding rephrase output: %v", meshtypes.ErrSchemaViolation, err)
	}

	brief := fmt.Sprintf("Abstract: %s\nDescription: %s\nContext: %s\nCompletion criteria: %s\n",
		out.Abstract, out.Description, out.Context, out.CompletionCriteria)
	for _, idx := range out.IndexToIntegrate {
		if idx >= 0 && idx < len(refs) {
			brief += fmt.Sprintf("Task Inputs [%d] %s: %s\n", idx, refs[idx].label, refs[idx].body)
		}
	}
	return out, brief, nil
}

// referenceCorpus is the union spec.md names: the latest five *non-routine*
// memory entries, plus the completed TaskEntry bound to every InformResult
// announcement in memory, inside the window or not. Grounded on
// `_get_hybrid_recent_history` in
// `original_source/im_client/communication/communication_layer.py`: walking
// memory newest-first, a background-progress announcement
// (MessageTag == TypeInformProgress) is skipped outright — it neither counts
// against the five-entry window nor appears itself; a result announcement
// (MessageTag == TypeInformResult) is substituted by the TaskEntry it is
// bound to, unconditionally (never capped by the window); every other entry
// is ordinary discussion material and is kept only while the window still
// has room. The result is restored to chronological order before return.
func referenceCorpus(state *SessionState) []referenceItem {
	entries := state.Memory.Entries()

	var refs []referenceItem
	kept := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		switch entry.MessageTag {
		case meshtypes.TypeInformProgress:
			continue
		case meshtypes.TypeInformResult:
			task, ok := state.Tasks.TaskForMessage(messageKey(entry))
			if !ok || task.Status != meshtypes.Completed {
				continue
			}
			conclusion := ""
			if task.Conclusion != nil {
				conclusion = *task.Conclusion
			}
			refs = append(refs, referenceItem{label: "completed task " + task.TaskAbstract, body: conclusion})
		default:
			if kept >= 5 {
				continue
			}
			refs = append(refs, referenceItem{label: "message from " + entry.Name, body: entry.ContentString()})
			kept++
		}
	}

	for i, j := 0, len(refs)-1; i < j; i, j = i+1, j-1 {
		refs[i], refs[j] = refs[j], refs[i]
	}
	return refs
}
