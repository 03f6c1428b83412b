package offline

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"

	"github.com/coopa/backend/internal/config"
)

// Resolution is the outcome of reconciling a queued write with the
// server's version. Merged is empty under user-choice; MergedAt is set
// only under merge.
type Resolution struct {
	Strategy config.ConflictStrategy `json:"strategy"`
	Local    json.RawMessage         `json:"localData,omitempty"`
	Remote   json.RawMessage         `json:"remoteData,omitempty"`
	Merged   json.RawMessage         `json:"mergedData,omitempty"`
	MergedAt *time.Time              `json:"mergedAt,omitempty"`
	Reason   string                  `json:"reason,omitempty"`
}

// ResolveConflict applies strategy to local and remote. Unknown strategies
// resolve as server-wins.
func ResolveConflict(local, remote json.RawMessage, strategy config.ConflictStrategy, now time.Time) Resolution {
	switch strategy {
	case config.Merge:
		return Resolution{Strategy: config.Merge, Local: local, Remote: remote, Merged: mergeShallow(local, remote), MergedAt: &now}
	case config.UserChoice:
		return Resolution{Strategy: config.UserChoice, Local: local, Remote: remote}
	}
	return Resolution{Strategy: config.ServerWins, Local: local, Remote: remote, Merged: remote}
}

// mergeShallow overlays remote keys on local ones. If either side is not a
// JSON object the remote value wins. The result carries no marker keys so
// it can be replayed to endpoints that reject unknown fields.
func mergeShallow(local, remote json.RawMessage) json.RawMessage {
	var l, r map[string]any
	if json.Unmarshal(local, &l) != nil || json.Unmarshal(remote, &r) != nil || l == nil || r == nil {
		return remote
	}

	merged := make(map[string]any, len(l)+len(r))
	for k, v := range l {
		merged[k] = v
	}
	for k, v := range r {
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return remote
	}
	return out
}

// ServerReply is the part of an error envelope the processor acts on. A
// conflict may carry the server's version of the resource in Current.
type ServerReply struct {
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	Retryable *bool           `json:"retryable"`
	Current   json.RawMessage `json:"current"`
}

// parseReply decodes body as an error envelope. ok is false when body is
// not a JSON object with an error message.
func parseReply(body json.RawMessage) (reply ServerReply, ok bool) {
	if json.Unmarshal(body, &reply) != nil || reply.Error == "" {
		return ServerReply{}, false
	}
	return reply, true
}

// RemoteVersion extracts the server's version of a resource from a 409
// body: the envelope's current object, or the body itself when it is a
// plain resource. An envelope without current has no remote version.
func RemoteVersion(body json.RawMessage) (json.RawMessage, bool) {
	if reply, ok := parseReply(body); ok {
		if isObject(reply.Current) {
			return reply.Current, true
		}
		return nil, false
	}
	if isObject(body) {
		return body, true
	}
	return nil, false
}

func isObject(raw json.RawMessage) bool {
	var m map[string]any
	return json.Unmarshal(raw, &m) == nil && m != nil
}

// MergeDataIntelligently keeps every remote value and adds local keys the
// remote side does not have.
func MergeDataIntelligently(local, remote map[string]any) map[string]any {
	merged := make(map[string]any, len(remote)+len(local))
	for k, v := range remote {
		merged[k] = v
	}
	for k, v := range local {
		if _, ok := remote[k]; !ok {
			merged[k] = v
		}
	}
	return merged
}

// DetectConflicts returns the sorted keys present on both sides with
// different values.
func DetectConflicts(local, remote map[string]any) []string {
	var conflicts []string
	for k, lv := range local {
		rv, ok := remote[k]
		if ok && !reflect.DeepEqual(lv, rv) {
			conflicts = append(conflicts, k)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}

type FieldConflict struct {
	Field  string `json:"field"`
	Local  any    `json:"local"`
	Remote any    `json:"remote"`
}

// ConflictReport lists the diverging fields of a parked item for manual
// resolution.
type ConflictReport struct {
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Conflicts []FieldConflict `json:"conflicts"`
	Options   []string        `json:"options"`
}

func NewConflictReport(local, remote map[string]any) ConflictReport {
	report := ConflictReport{
		Title:   "Data Changed Remotely",
		Message: "Your local changes conflict with remote data. Choose how to proceed:",
		Options: []string{"local", "remote", "merge"},
	}
	for _, k := range DetectConflicts(local, remote) {
		report.Conflicts = append(report.Conflicts, FieldConflict{Field: k, Local: local[k], Remote: remote[k]})
	}
	return report
}
