package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/companygpt/sidekick/internal/events"
)

// The retrieval-augmented reply runs three chat calls: extract a search
// query from the email, search the knowledge base, generate the reply.
const retrievalSteps = 3

const queryExtractionPrompt = `Du bist ein Such-Assistent. Extrahiere aus der folgenden E-Mail die Kernthemen als kurze Suchanfrage. Verbinde mehrere Themen mit "UND". Antworte ausschließlich mit der Suchanfrage, ohne Erklärung.

%s`

const replyGenerationPrompt = `Du bist ein Experte und beantwortest die folgende E-Mail. Das folgende Wissen ist dein eigenes Fachwissen; gib keine Quellen an und verweise nicht auf Dokumente:

%s

Die E-Mail:

%s

Verfasse eine fokussierte, professionelle Antwort.`

// ReplyWithKnowledge generates an email reply grounded in the selected
// knowledge-base folder. Progress is published on the bus per step; a
// cancelled context stops later steps, appends a system "aborted" record
// and clears the intent instead of returning an error.
func (o *Orchestrator) ReplyWithKnowledge(ctx context.Context, emailText string) (Message, error) {
	folder, ok := o.SelectedFolder()
	if !ok {
		return Message{}, NewError(KindUnsupportedDocument, "no knowledge-base folder selected", nil)
	}
	if err := o.store.Set(PathCurrentIntent, IntentEmailReply); err != nil {
		return Message{}, err
	}

	record := &ProcessRecord{FolderName: folder.Name}

	// Step 1: query extraction, isolated single-message payload.
	query, err := o.runStep(ctx, record, 1, "Suchanfrage wird erstellt", func() (string, error) {
		body := o.requestBody([]wireMessage{{
			Role:       RoleUser,
			Content:    fmt.Sprintf(queryExtractionPrompt, emailText),
			References: []string{},
			Sources:    []string{},
		}}, "BASIC", []string{})
		return o.post(ctx, body)
	})
	if err != nil {
		return o.finishRetrievalFailure(ctx, err)
	}

	// Step 2: knowledge-base search against the selected folder.
	retrieved, err := o.runStep(ctx, record, 2, "Wissensdatenbank wird durchsucht", func() (string, error) {
		body := o.requestBody([]wireMessage{{
			Role:       RoleUser,
			Content:    query,
			References: []string{},
			Sources:    []string{},
		}}, "QA", []string{folder.ID})
		return o.post(ctx, body)
	})
	if err != nil {
		return o.finishRetrievalFailure(ctx, err)
	}
	record.Hits = countHits(retrieved)

	// Step 3: reply generation from the retrieved knowledge.
	reply, err := o.runStep(ctx, record, 3, "Antwort wird verfasst", func() (string, error) {
		body := o.requestBody([]wireMessage{{
			Role:       RoleUser,
			Content:    fmt.Sprintf(replyGenerationPrompt, retrieved, emailText),
			References: []string{},
			Sources:    []string{},
		}}, "BASIC", []string{})
		return o.post(ctx, body)
	})
	if err != nil {
		return o.finishRetrievalFailure(ctx, err)
	}

	processMsg := NewMessage(RoleProcess, "")
	processMsg.Process = record
	if err := o.appendMessage(processMsg); err != nil {
		return Message{}, err
	}

	assistant := NewMessage(RoleAssistant, reply)
	assistant.Mode = "BASIC"
	assistant.UsedDataCollection = folder.Name
	assistant.FolderID = folder.ID
	assistant.OfferInsert = true
	if err := o.appendMessage(assistant); err != nil {
		return Message{}, err
	}

	o.clearIntent()
	return assistant, nil
}

// runStep wraps one retrieval step with progress events and the record
// entry.
func (o *Orchestrator) runStep(ctx context.Context, record *ProcessRecord, index int, label string, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	o.bus.Publish(events.ChatStepStarted, events.StepPayload{Index: index, Total: retrievalSteps, Label: label})
	record.Steps = append(record.Steps, ProcessStep{Text: label, Status: StepRunning})

	out, err := fn()
	step := &record.Steps[len(record.Steps)-1]
	if err != nil {
		step.Status = StepError
		o.bus.Publish(events.ChatStepFailed, events.StepPayload{Index: index, Total: retrievalSteps, Label: label, Detail: err.Error()})
		return "", err
	}

	step.Status = StepComplete
	step.Detail = summarize(out)
	o.bus.Publish(events.ChatStepCompleted, events.StepPayload{
		Index:   index,
		Total:   retrievalSteps,
		Label:   label,
		Summary: summarize(out),
	})
	return out, nil
}

// finishRetrievalFailure turns a step failure into its surface form:
// cancellation appends a system "aborted" record, server unavailability an
// inline assistant message. Both clear the intent and return no error.
func (o *Orchestrator) finishRetrievalFailure(ctx context.Context, err error) (Message, error) {
	if ctx.Err() != nil {
		o.bus.Publish(events.ChatAborted, nil)
		aborted := NewMessage(RoleSystem, "Die Anfrage wurde abgebrochen.")
		aborted.ErrorType = KindAborted
		if appendErr := o.appendMessage(aborted); appendErr != nil {
			o.logger.Error("failed to append abort record", "error", appendErr)
		}
		o.clearIntent()
		return aborted, nil
	}

	if isServerUnavailable(err) {
		placeholder := NewMessage(RoleAssistant,
			"Der CompanyGPT-Server ist gerade nicht erreichbar. Bitte versuchen Sie es in einem Moment erneut.")
		placeholder.IsError = true
		placeholder.ErrorType = KindServerUnavailable
		if appendErr := o.appendMessage(placeholder); appendErr != nil {
			o.logger.Error("failed to append error placeholder", "error", appendErr)
		}
		o.clearIntent()
		return placeholder, nil
	}

	o.clearIntent()
	return Message{}, fmt.Errorf("retrieval flow failed: %w", err)
}

// countHits estimates how many knowledge fragments the search returned.
func countHits(retrieved string) int {
	var hits int
	for _, block := range strings.Split(retrieved, "\n\n") {
		if strings.TrimSpace(block) != "" {
			hits++
		}
	}
	return hits
}

// summarize truncates step output for the progress feed.
func summarize(s string) string {
	s = strings.TrimSpace(s)
	const max = 120
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndex(cut, " "); idx > 60 {
		cut = cut[:idx]
	}
	return cut + "…"
}
