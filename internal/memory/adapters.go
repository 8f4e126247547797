package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/polaris-ecosystems/rfp-agent/internal/agentruntime"
	"github.com/polaris-ecosystems/rfp-agent/internal/jobexecutor"
)

// AgentRuntimeAdapter satisfies agentruntime.Memory over a Repository,
// letting the interactive agent loop's end-of-run learning hooks (spec
// section 4.7 step 8) write through to the real Memory Subsystem without
// agentruntime importing this package back.
type AgentRuntimeAdapter struct {
	Repo *Repository
}

var _ agentruntime.Memory = (*AgentRuntimeAdapter)(nil)

func collaborationScopeID(c agentruntime.CollaborationContext) string {
	if c.RFPID != "" {
		return "RFP#" + c.RFPID
	}
	if c.ChannelID != "" {
		return "CHANNEL#" + c.ChannelID
	}
	return "GLOBAL"
}

// AddCollaborationContext implements agentruntime.Memory.
func (a *AgentRuntimeAdapter) AddCollaborationContext(ctx context.Context, c agentruntime.CollaborationContext) error {
	_, err := a.Repo.CreateMemory(ctx, CreateInput{
		Type:    TypeCollaborationContext,
		ScopeID: collaborationScopeID(c),
		Content: c.Content,
		Tags:    []string{"collaboration", c.CollaborationType},
		Metadata: map[string]any{
			"participantUserIds": c.ParticipantUserIDs,
			"collaborationType":  c.CollaborationType,
			"success":            c.Success,
			"messageCount":       c.MessageCount,
		},
		Provenance: map[string]any{"channelId": c.ChannelID, "threadTs": c.ThreadTS, "rfpId": c.RFPID, "source": c.Source},
	})
	return err
}

// AddTemporalEvent implements agentruntime.Memory.
func (a *AgentRuntimeAdapter) AddTemporalEvent(ctx context.Context, e agentruntime.TemporalEvent) error {
	scopeID := e.ScopeID
	if scopeID == "" {
		if e.RFPID != "" {
			scopeID = "RFP#" + e.RFPID
		} else {
			scopeID = "GLOBAL"
		}
	}
	_, err := a.Repo.AddTemporalEventMemory(ctx, AddTemporalEventInput{
		ScopeID:   scopeID,
		Content:   e.Content,
		EventAt:   e.EventAt,
		EventType: e.EventType,
		Metadata:  map[string]any{"confidence": e.Confidence},
		Provenance: map[string]any{
			"channelId": e.ChannelID, "threadTs": e.ThreadTS, "rfpId": e.RFPID, "source": e.Source,
		},
	})
	return err
}

// AddProceduralMemory implements agentruntime.Memory.
func (a *AgentRuntimeAdapter) AddProceduralMemory(ctx context.Context, m agentruntime.ProceduralMemory) error {
	scopeID := "GLOBAL"
	if m.RFPID != "" {
		scopeID = "RFP#" + m.RFPID
	}
	_, err := a.Repo.CreateMemory(ctx, CreateInput{
		Type:     TypeProcedural,
		ScopeID:  scopeID,
		Content:  m.Summary,
		Tags:     []string{"procedural"},
		Metadata: map[string]any{"task": m.Task, "stepCount": m.StepCount},
		Provenance: map[string]any{"rfpId": m.RFPID, "source": m.Source},
	})
	return err
}

// AddErrorLog implements agentruntime.Memory.
func (a *AgentRuntimeAdapter) AddErrorLog(ctx context.Context, e agentruntime.ErrorLogEntry) error {
	scopeID := "GLOBAL"
	if e.RFPID != "" {
		scopeID = "RFP#" + e.RFPID
	}
	_, err := a.Repo.CreateMemory(ctx, CreateInput{
		Type:     TypeProcedural,
		ScopeID:  scopeID,
		Content:  e.Error,
		Tags:     []string{"procedural", "error"},
		Metadata: map[string]any{"task": e.Task, "stepCount": e.StepCount, "success": false},
		Provenance: map[string]any{"rfpId": e.RFPID, "source": e.Source},
	})
	return err
}

// JobExecutorAdapter satisfies jobexecutor.ProceduralMemory over a
// Repository, giving the job planner's similar-job guidance (spec section
// 4.9 / SPEC_FULL "Similar-successful-job guidance") a real store to query
// instead of the narrow interface's prior no-op.
type JobExecutorAdapter struct {
	Repo *Repository
}

var _ jobexecutor.ProceduralMemory = (*JobExecutorAdapter)(nil)

const jobMemoryScope = "GLOBAL#JOBS"

// SimilarSuccessfulJobs implements jobexecutor.ProceduralMemory by scoring
// recorded successes against request via keyword overlap.
func (a *JobExecutorAdapter) SimilarSuccessfulJobs(ctx context.Context, request string, limit int) ([]jobexecutor.SuccessRecord, error) {
	memories, err := a.Repo.GetMemoriesForContext(ctx, QueryParams{
		ScopeIDs: []string{jobMemoryScope},
		Types:    []Type{TypeProcedural},
		Query:    request,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]jobexecutor.SuccessRecord, 0, len(memories))
	for _, m := range memories {
		success, _ := m.Metadata["success"].(bool)
		if !success {
			continue
		}
		req, _ := m.Metadata["request"].(string)
		toolsCSV, _ := m.Metadata["toolNames"].(string)
		var toolNames []string
		if toolsCSV != "" {
			toolNames = strings.Split(toolsCSV, ",")
		}
		out = append(out, jobexecutor.SuccessRecord{Request: req, ToolNames: toolNames, Summary: m.Content})
	}
	return out, nil
}

// RecordSuccess implements jobexecutor.ProceduralMemory.
func (a *JobExecutorAdapter) RecordSuccess(ctx context.Context, jobID, request string, toolNames []string, summary string) error {
	_, err := a.Repo.CreateMemory(ctx, CreateInput{
		Type:    TypeProcedural,
		ScopeID: jobMemoryScope,
		Content: summary,
		Tags:    []string{"procedural", "job", "success"},
		Metadata: map[string]any{
			"jobId": jobID, "request": request, "toolNames": strings.Join(toolNames, ","), "success": true,
		},
		Provenance: map[string]any{"source": "job_executor"},
	})
	return err
}

// RecordFailure implements jobexecutor.ProceduralMemory.
func (a *JobExecutorAdapter) RecordFailure(ctx context.Context, jobID, request string, stepErrors map[string]string) error {
	_, err := a.Repo.CreateMemory(ctx, CreateInput{
		Type:    TypeProcedural,
		ScopeID: jobMemoryScope,
		Content: fmt.Sprintf("job %s failed: %v", jobID, stepErrors),
		Tags:    []string{"procedural", "job", "failure"},
		Metadata: map[string]any{
			"jobId": jobID, "request": request, "stepErrors": stepErrors, "success": false,
		},
		Provenance: map[string]any{"source": "job_executor"},
	})
	return err
}
