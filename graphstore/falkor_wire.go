package graphstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"

	"github.com/yagokoro-dev/yagokoro/kg"
)

// queryResult holds one GRAPH.QUERY response: an optional header, the result
// rows, and the trailing statistics strings.
type queryResult struct {
	header []string
	rows   [][]any
	stats  []string
}

// query runs one Cypher statement. The response is either
// [header, rows, stats] or [rows, stats] depending on whether the statement
// returns data.
func (s *FalkorStore) query(ctx context.Context, q string) (queryResult, error) {
	qr := queryResult{}

	res, err := s.client.Do(ctx, "GRAPH.QUERY", s.graph, q, "--compact").Result()
	if err != nil {
		return qr, classifyRedisError(err)
	}

	r, ok := res.([]any)
	if !ok {
		return qr, kg.NewFatal(fmt.Sprintf("unexpected graph response type %T", res), nil)
	}

	switch len(r) {
	case 3:
		if header, ok := r[0].([]any); ok {
			qr.header = make([]string, len(header))
			for i, h := range header {
				qr.header[i] = fmt.Sprint(h)
			}
		}
		qr.rows = decodeRows(r[1])
		qr.stats = decodeStats(r[2])
	case 2:
		qr.rows = decodeRows(r[0])
		qr.stats = decodeStats(r[1])
	default:
		return qr, kg.NewFatal(fmt.Sprintf("unexpected graph response length %d", len(r)), nil)
	}
	return qr, nil
}

func decodeRows(v any) [][]any {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		if vals, ok := row.([]any); ok {
			out[i] = vals
		}
	}
	return out
}

func decodeStats(v any) []string {
	stats, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = fmt.Sprint(s)
	}
	return out
}

// classifyRedisError maps go-redis failures onto the error kinds: network
// and server loss are transient, constraint violations are conflicts.
func classifyRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return kg.NewTimeout("graph query", err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unique constraint"), strings.Contains(msg, "constraint violation"):
		return kg.NewConflict("graph constraint violation: " + msg)
	case errors.Is(err, redis.Nil):
		return kg.NewNotFound("graph", "result")
	default:
		return kg.NewTransient("graph query", err)
	}
}

// PrettyPrint renders the result as a table plus the statistics lines, for
// the CLI graph inspection commands.
func (qr *queryResult) PrettyPrint(w io.Writer) {
	if len(qr.rows) > 0 {
		table := tablewriter.NewWriter(w)
		table.SetAutoFormatHeaders(false)
		if len(qr.header) > 0 {
			table.SetHeader(qr.header)
		}
		for _, row := range qr.rows {
			sRow := make([]string, len(row))
			for i, v := range row {
				sRow[i] = fmt.Sprint(v)
			}
			table.Append(sRow)
		}
		table.Render()
	}
	for _, stat := range qr.stats {
		fmt.Fprintf(w, "%s\n", stat)
	}
}

var labelRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeLabel strips every character that is not legal in a Cypher label.
// Labels always come from the closed type enums, so this is belt and braces
// rather than the injection barrier.
func sanitizeLabel(l string) string {
	clean := labelRegex.ReplaceAllString(l, "_")
	if clean == "" {
		return "Entity"
	}
	return clean
}

// cypherString renders a string as a single-quoted Cypher literal with
// backslash and quote escaping. All caller-supplied values pass through
// here; labels and relation types never do.
func cypherString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	v = strings.ReplaceAll(v, "\x00", "")
	return "'" + v + "'"
}

func cypherFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// propsMap renders a Cypher property map from ordered key/value pairs.
func propsMap(pairs [][2]string) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p[0] + ": " + p[1]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// entityProps flattens an entity into its node property map. Structured
// fields travel as JSON strings; embeddings live in the vector store, not
// the graph.
func entityProps(e *kg.Entity) (string, error) {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return "", kg.NewFatal("encode entity properties", err)
	}
	chunksJSON, err := json.Marshal(e.SourceChunks)
	if err != nil {
		return "", kg.NewFatal("encode entity provenance", err)
	}
	return propsMap([][2]string{
		{"id", cypherString(e.ID)},
		{"type", cypherString(string(e.Type))},
		{"name", cypherString(e.Name)},
		{"norm_name", cypherString(kg.NormalizeName(e.Name))},
		{"description", cypherString(e.Description)},
		{"confidence", cypherFloat(e.Confidence)},
		{"props", cypherString(string(propsJSON))},
		{"source_chunks", cypherString(string(chunksJSON))},
		{"created_at", strconv.FormatInt(e.CreatedAt.Unix(), 10)},
		{"updated_at", strconv.FormatInt(e.UpdatedAt.Unix(), 10)},
	}), nil
}

// relationProps flattens a relation into its edge property map. Endpoints
// are duplicated as properties so edge rows decode without internal IDs.
func relationProps(r *kg.Relation) (string, error) {
	propsJSON, err := json.Marshal(r.Properties)
	if err != nil {
		return "", kg.NewFatal("encode relation properties", err)
	}
	chunksJSON, err := json.Marshal(r.SourceChunks)
	if err != nil {
		return "", kg.NewFatal("encode relation provenance", err)
	}
	return propsMap([][2]string{
		{"id", cypherString(r.ID)},
		{"type", cypherString(string(r.Type))},
		{"source_id", cypherString(r.SourceID)},
		{"target_id", cypherString(r.TargetID)},
		{"confidence", cypherFloat(r.Confidence)},
		{"props", cypherString(string(propsJSON))},
		{"source_chunks", cypherString(string(chunksJSON))},
		{"created_at", strconv.FormatInt(r.CreatedAt.Unix(), 10)},
	}), nil
}

func communityProps(c *kg.Community) (string, error) {
	membersJSON, err := json.Marshal(c.MemberIDs)
	if err != nil {
		return "", kg.NewFatal("encode community members", err)
	}
	childrenJSON, err := json.Marshal(c.ChildIDs)
	if err != nil {
		return "", kg.NewFatal("encode community children", err)
	}
	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return "", kg.NewFatal("encode community keywords", err)
	}
	return propsMap([][2]string{
		{"id", cypherString(c.ID)},
		{"level", strconv.Itoa(c.Level)},
		{"member_ids", cypherString(string(membersJSON))},
		{"parent_id", cypherString(c.ParentID)},
		{"child_ids", cypherString(string(childrenJSON))},
		{"summary", cypherString(c.Summary)},
		{"keywords", cypherString(string(keywordsJSON))},
		{"member_count", strconv.Itoa(c.MemberCount)},
		{"summarized_at", strconv.FormatInt(c.SummarizedAt.Unix(), 10)},
		{"membership_hash", cypherString(c.MembershipHash)},
	}), nil
}

// nodeProperties extracts the key/value property pairs of a graph object.
// A node row is [id, labels, properties]; an edge row carries its property
// pairs at the final index. Pairs arrive as [key, value] with bulk strings
// as []byte.
func nodeProperties(obj any) map[string]any {
	vals, ok := obj.([]any)
	if !ok || len(vals) < 3 {
		return nil
	}
	props, ok := vals[len(vals)-1].([]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(props))
	for _, p := range props {
		pair, ok := p.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		key, ok := scalarValue(pair[0]).(string)
		if !ok {
			continue
		}
		out[key] = scalarValue(pair[len(pair)-1])
	}
	return out
}

// scalarValue normalises a wire value: bulk strings become string, numbers
// stay numeric.
func scalarValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case []any:
		if len(x) == 2 {
			// Compact scalars arrive as [typeID, value].
			return scalarValue(x[1])
		}
		return x
	default:
		return v
	}
}

func propString(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func propFloat(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func propInt(props map[string]any, key string) int {
	return int(propFloat(props, key))
}

func propTime(props map[string]any, key string) time.Time {
	sec := int64(propFloat(props, key))
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

func propJSONStrings(props map[string]any, key string) []string {
	raw := propString(props, key)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func propJSONMap(props map[string]any, key string) map[string]any {
	raw := propString(props, key)
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseEntityNode decodes a node row into an entity. Returns nil when the
// object does not carry the entity schema.
func parseEntityNode(obj any) *kg.Entity {
	props := nodeProperties(obj)
	if props == nil || propString(props, "id") == "" {
		return nil
	}
	return &kg.Entity{
		ID:           propString(props, "id"),
		Type:         kg.EntityType(propString(props, "type")),
		Name:         propString(props, "name"),
		Description:  propString(props, "description"),
		Properties:   propJSONMap(props, "props"),
		Confidence:   propFloat(props, "confidence"),
		SourceChunks: propJSONStrings(props, "source_chunks"),
		CreatedAt:    propTime(props, "created_at"),
		UpdatedAt:    propTime(props, "updated_at"),
	}
}

// parseRelationEdge decodes an edge row into a relation using the endpoint
// IDs stored as edge properties.
func parseRelationEdge(obj any) *kg.Relation {
	props := nodeProperties(obj)
	if props == nil || propString(props, "id") == "" {
		return nil
	}
	return &kg.Relation{
		ID:           propString(props, "id"),
		SourceID:     propString(props, "source_id"),
		TargetID:     propString(props, "target_id"),
		Type:         kg.RelationType(propString(props, "type")),
		Confidence:   propFloat(props, "confidence"),
		Properties:   propJSONMap(props, "props"),
		SourceChunks: propJSONStrings(props, "source_chunks"),
		CreatedAt:    propTime(props, "created_at"),
	}
}

func parseCommunityNode(obj any) *kg.Community {
	props := nodeProperties(obj)
	if props == nil || propString(props, "id") == "" {
		return nil
	}
	return &kg.Community{
		ID:             propString(props, "id"),
		Level:          propInt(props, "level"),
		MemberIDs:      propJSONStrings(props, "member_ids"),
		ParentID:       propString(props, "parent_id"),
		ChildIDs:       propJSONStrings(props, "child_ids"),
		Summary:        propString(props, "summary"),
		Keywords:       propJSONStrings(props, "keywords"),
		MemberCount:    propInt(props, "member_count"),
		SummarizedAt:   propTime(props, "summarized_at"),
		MembershipHash: propString(props, "membership_hash"),
	}
}
