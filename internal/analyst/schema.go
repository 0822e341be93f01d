package analyst

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// opinionSchema 约束模型输出的必填字段与类型；范围修复（clamp/排序/截断）
// 留给 normalize，这里只拦截无法修复的结构性缺陷。
const opinionSchema = `{
  "type": "object",
  "required": ["recommendation", "confidence", "price_target", "position_size", "risk_level", "summary"],
  "properties": {
    "recommendation": {"type": "string"},
    "confidence": {"type": "number"},
    "price_target": {
      "type": "object",
      "required": ["bull", "base", "bear"],
      "properties": {
        "bull": {"type": "number"},
        "base": {"type": "number"},
        "bear": {"type": "number"}
      }
    },
    "position_size": {"type": "number"},
    "bull_case": {"type": "array", "items": {"type": "string"}},
    "bear_case": {"type": "array", "items": {"type": "string"}},
    "catalysts": {"type": "array", "items": {"type": "string"}},
    "risk_level": {"type": "string"},
    "summary": {"type": "string"}
  }
}`

var compiledOpinionSchema = mustCompile("opinion.json", opinionSchema)

// OpinionSchema 返回随生成请求下发的 JSON Schema 原文。
func OpinionSchema() json.RawMessage {
	return json.RawMessage(opinionSchema)
}

func mustCompile(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(err)
	}
	return c.MustCompile(name)
}

func validateOpinionJSON(doc any) error {
	return compiledOpinionSchema.Validate(doc)
}
