package agent

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestParsePipeline_Simple(t *testing.T) {
	p, err := ParsePipeline(`[{"$count": "total"}]`)
	if err != nil {
		t.Fatalf("ParsePipeline() error: %v", err)
	}
	if len(p) != 1 {
		t.Fatalf("len = %d, want 1", len(p))
	}
	if op := stageOperator(p[0]); op != "$count" {
		t.Errorf("operator = %q, want $count", op)
	}
	if p[0][0].Value != "total" {
		t.Errorf("value = %v, want total", p[0][0].Value)
	}
}

func TestParsePipeline_PreservesKeyOrder(t *testing.T) {
	p, err := ParsePipeline(`[{"$sort": {"zebra": 1, "apple": -1, "mango": 1}}]`)
	if err != nil {
		t.Fatalf("ParsePipeline() error: %v", err)
	}
	sortDoc, ok := p[0][0].Value.(bson.D)
	if !ok {
		t.Fatalf("$sort value is %T, want bson.D", p[0][0].Value)
	}
	wantKeys := []string{"zebra", "apple", "mango"}
	for i, e := range sortDoc {
		if e.Key != wantKeys[i] {
			t.Errorf("key[%d] = %q, want %q", i, e.Key, wantKeys[i])
		}
	}
}

func TestParsePipeline_NumberTypes(t *testing.T) {
	p, err := ParsePipeline(`[{"$match": {"item.total_price": {"$gt": 100000}}}, {"$limit": 5}]`)
	if err != nil {
		t.Fatalf("ParsePipeline() error: %v", err)
	}
	if v := p[1][0].Value; v != int64(5) {
		t.Errorf("$limit value = %v (%T), want int64(5)", v, v)
	}

	p, err = ParsePipeline(`[{"$match": {"score": 0.5}}]`)
	if err != nil {
		t.Fatalf("ParsePipeline() error: %v", err)
	}
	match := p[0][0].Value.(bson.D)
	if v := match[0].Value; v != 0.5 {
		t.Errorf("score = %v (%T), want float64(0.5)", v, v)
	}
}

func TestParsePipeline_NestedArrays(t *testing.T) {
	raw := `[{"$group": {"_id": null, "total": {"$sum": {"$ifNull": ["$item.total_price", 0]}}}}]`
	p, err := ParsePipeline(raw)
	if err != nil {
		t.Fatalf("ParsePipeline() error: %v", err)
	}
	group := p[0][0].Value.(bson.D)
	if group[0].Key != "_id" || group[0].Value != nil {
		t.Errorf("_id entry = %+v, want nil", group[0])
	}
	sum := group[1].Value.(bson.D)[0].Value.(bson.D)
	ifNull, ok := sum[0].Value.(bson.A)
	if !ok {
		t.Fatalf("$ifNull value is %T, want bson.A", sum[0].Value)
	}
	if ifNull[0] != "$item.total_price" || ifNull[1] != int64(0) {
		t.Errorf("$ifNull args = %v", ifNull)
	}
}

func TestParsePipeline_Rejections(t *testing.T) {
	cases := map[string]string{
		"prose":           `here is your pipeline: [{"$count": "n"}]`,
		"object":          `{"$count": "n"}`,
		"empty array":     `[]`,
		"not json":        `not json at all`,
		"trailing text":   `[{"$count": "n"}] done`,
		"non-object item": `[42]`,
		"truncated":       `[{"$match": {"a"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePipeline(raw); err == nil {
				t.Errorf("ParsePipeline(%q) should fail", raw)
			}
		})
	}
}

func TestPipeline_HasStage(t *testing.T) {
	p, _ := ParsePipeline(`[{"$match": {"a": 1}}, {"$limit": 10}]`)
	if !p.HasStage("$limit") {
		t.Error("HasStage($limit) = false, want true")
	}
	if p.HasStage("$group") {
		t.Error("HasStage($group) = true, want false")
	}
}

func TestPipeline_WithLimit(t *testing.T) {
	p, _ := ParsePipeline(`[{"$match": {"a": 1}}]`)
	capped := p.WithLimit(100)

	if len(capped) != 2 {
		t.Fatalf("len = %d, want 2", len(capped))
	}
	if len(p) != 1 {
		t.Error("WithLimit mutated the receiver")
	}
	last := capped[len(capped)-1]
	if last[0].Key != "$limit" || last[0].Value != 100 {
		t.Errorf("appended stage = %v", last)
	}

	// Already capped: returned unchanged, exactly one $limit.
	again := capped.WithLimit(5)
	if len(again) != 2 {
		t.Errorf("len = %d, want 2 (no second $limit)", len(again))
	}
}

func TestPipeline_MarshalJSON(t *testing.T) {
	p, _ := ParsePipeline(`[{"$sort": {"b": 1, "a": -1}}, {"$limit": 3}]`)
	b, err := p.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}
	got := string(b)
	want := `[{"$sort":{"b":1,"a":-1}},{"$limit":3}]`
	if got != want {
		t.Errorf("MarshalJSON() = %s, want %s", got, want)
	}

	var nilP Pipeline
	b, _ = nilP.MarshalJSON()
	if string(b) != "null" {
		t.Errorf("nil pipeline marshals to %s, want null", b)
	}
}

func TestParsePipeline_WhitespaceTolerated(t *testing.T) {
	if _, err := ParsePipeline("\n  [{\"$count\": \"n\"}]  \n"); err != nil {
		t.Errorf("surrounding whitespace should be tolerated: %v", err)
	}
	if _, err := ParsePipeline("```json\n[{\"$count\": \"n\"}]\n```"); err == nil {
		t.Error("markdown fences are prose and must be rejected")
	}
}
