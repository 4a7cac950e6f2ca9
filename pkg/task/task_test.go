package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, int(PriorityLow), int(PriorityNormal))
	assert.Less(t, int(PriorityNormal), int(PriorityHigh))
	assert.Less(t, int(PriorityHigh), int(PriorityCritical))
}

func TestStatusIsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		terminal bool
	}{
		{"pending", StatusPending, false},
		{"assigned", StatusAssigned, false},
		{"processing", StatusProcessing, false},
		{"completed", StatusCompleted, true},
		{"failed", StatusFailed, true},
		{"cancelled", StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestTaskValidate(t *testing.T) {
	base := func() *Task {
		return &Task{
			ID:         "t-1",
			Kind:       TaskKind{Kind: KindTextAnalysis},
			MaxRetries: 2,
		}
	}

	t.Run("valid task", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		tsk := base()
		tsk.ID = ""
		assert.Error(t, tsk.Validate())
	})

	t.Run("negative max retries", func(t *testing.T) {
		tsk := base()
		tsk.MaxRetries = -1
		assert.Error(t, tsk.Validate())
	})

	t.Run("retry count exceeds max", func(t *testing.T) {
		tsk := base()
		tsk.RetryCount = 3
		tsk.MaxRetries = 2
		assert.Error(t, tsk.Validate())
	})

	t.Run("document task without document or payload", func(t *testing.T) {
		tsk := base()
		tsk.Kind = TaskKind{Kind: KindDocumentProcessing, DocType: DocumentPDF, Operation: "extract_text"}
		assert.Error(t, tsk.Validate())
	})

	t.Run("document task with document", func(t *testing.T) {
		tsk := base()
		tsk.Kind = TaskKind{Kind: KindDocumentProcessing, DocType: DocumentPDF, Operation: "extract_text"}
		tsk.Document = &Document{ID: "doc-1", DocType: DocumentPDF}
		require.NoError(t, tsk.Validate())
	})
}

func TestTaskDeadlineExceeded(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tsk := &Task{ID: "t-1"}
	assert.False(t, tsk.DeadlineExceeded(now), "no deadline set")

	tsk.Deadline = &future
	assert.False(t, tsk.DeadlineExceeded(now))

	tsk.Deadline = &past
	assert.True(t, tsk.DeadlineExceeded(now))
}

func TestTaskCloneIsIndependent(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	orig := &Task{
		ID:       "t-1",
		Kind:     TaskKind{Kind: KindDocumentProcessing, DocType: DocumentPDF},
		Document: &Document{ID: "doc-1", DocType: DocumentPDF},
		Deadline: &deadline,
		Metadata: map[string]interface{}{"source": "inbox"},
	}

	clone := orig.Clone()
	clone.Status = StatusProcessing
	clone.Document.ID = "doc-2"
	clone.Metadata["source"] = "retry"
	*clone.Deadline = deadline.Add(time.Hour)

	assert.Equal(t, "doc-1", orig.Document.ID)
	assert.Equal(t, "inbox", orig.Metadata["source"])
	assert.Equal(t, deadline, *orig.Deadline)
	assert.NotEqual(t, orig.Status, clone.Status)
}

func TestResultRetryable(t *testing.T) {
	r := &Result{Status: ResultFailed, RetryCount: 1}
	assert.True(t, r.Retryable(3))

	r.RetryCount = 3
	assert.False(t, r.Retryable(3))

	completed := &Result{Status: ResultCompleted, RetryCount: 0}
	assert.False(t, completed.Retryable(3))
}

func TestTaskKindString(t *testing.T) {
	dp := TaskKind{Kind: KindDocumentProcessing, DocType: DocumentPDF, Operation: "extract_text"}
	assert.Equal(t, "document_processing:pdf:extract_text", dp.String())

	custom := TaskKind{Kind: KindCustom, Name: "ocr", Version: "v2"}
	assert.Equal(t, "custom:ocr:v2", custom.String())

	ta := TaskKind{Kind: KindTextAnalysis}
	assert.Equal(t, "text_analysis", ta.String())
}
