package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildStaticPrefix returns the instruction block shared by every
// pipeline-generation call. It is built once per Generator and reused
// verbatim so the completion service can cache it.
func buildStaticPrefix(schemaDescription string) string {
	return fmt.Sprintf(`You are an expert MongoDB query generator for a procurement database.

DATABASE SCHEMA:
%s

TASK: Generate a MongoDB aggregation pipeline for the following question.
IMPORTANT: If the question refers to previous results (e.g., "the above department", "that supplier", "those items"), use the department/supplier/item names from the CONVERSATION HISTORY if provided.

RULES:
1. Return ONLY a valid JSON array representing the MongoDB pipeline
2. Do NOT include any explanations, markdown, code blocks, or additional text
3. The JSON must be parseable and valid
4. Use proper MongoDB operators: $match, $group, $sum, $avg, $sort, $limit, etc.
5. Always include $limit stage (default 100 unless asked for more)
6. For fiscal year STRING grouping: use dates.fiscal_year (e.g., "2012-2013")
7. For fiscal year numeric filters: use dates.fiscal_year_start as INTEGER (e.g., 2013)
8. For spending/cost: ALWAYS use {"$sum": {"$ifNull": ["$item.total_price", 0]}} to handle nulls
9. Use department.normalized_name for department queries
10. For "top N", use $sort and $limit
11. Acquisition categories use acquisition.type with values "IT Goods", "IT Services", "NON-IT Goods", "NON-IT Services"
12. Treat each document as a purchase-order line item; do NOT group by purchase_order_number unless the user explicitly requests distinct purchase orders
13. For total record counts, use $count directly (no $group) unless the question explicitly asks for distinct values
14. When calculating aggregates (averages, percentages), include supporting fields such as group counts and the numerator/denominator values
15. CRITICAL DATA TYPES:
    - dates.fiscal_year is STRING (e.g., "2012-2013")
    - dates.fiscal_year_start is INTEGER (e.g., 2012, 2013, 2014, 2015)
    - item.total_price, item.unit_price, item.quantity are NUMBERS (not strings)
    - dates.creation, dates.purchase are ISODate objects
16. When user asks for "fiscal year 2014", they mean "2013-2014" (the fiscal year starting in 2013)
17. If conditional logic (e.g., $cond) is needed inside a $group, nest it inside the accumulator (such as $sum with a $cond expression) rather than using $cond as the accumulator name

EXAMPLES:
Question: "Show me spending by fiscal year"
Answer: [{"$group": {"_id": "$dates.fiscal_year", "total": {"$sum": {"$ifNull": ["$item.total_price", 0]}}}}, {"$sort": {"_id": 1}}, {"$limit": 100}]

Question: "Top 5 departments by spending in 2014"
Answer: [{"$match": {"dates.fiscal_year": "2013-2014"}}, {"$group": {"_id": "$department.normalized_name", "total": {"$sum": {"$ifNull": ["$item.total_price", 0]}}}}, {"$sort": {"total": -1}}, {"$limit": 5}]

Question: "Orders over $100,000"
Answer: [{"$match": {"item.total_price": {"$gt": 100000}}}, {"$limit": 100}]

Question: "How many orders were created in Q3 2013 (July to September)?"
Answer: [{"$match": {"$expr": {"$and": [{"$gte": ["$dates.creation", {"$toDate": "2013-07-01"}]}, {"$lt": ["$dates.creation", {"$toDate": "2013-10-01"}]}]}}}, {"$count": "count"}, {"$limit": 100}]

Question: "Show me orders from fiscal year 2012-2013"
Answer: [{"$match": {"dates.fiscal_year": "2012-2013"}}, {"$limit": 100}]

FOLLOW-UP QUESTION EXAMPLE:
Previous: "Which department spent the most?" -> Result: {"_id": "Health Care Services", "total": 99759350736.42}
Current Question: "Show me the top 10 items that department spent money on"
Answer: [{"$match": {"department.normalized_name": "Health Care Services"}}, {"$group": {"_id": "$item.name", "total": {"$sum": {"$ifNull": ["$item.total_price", 0]}}}}, {"$sort": {"total": -1}}, {"$limit": 10}]

---END OF CACHED INSTRUCTIONS---`, schemaDescription)
}

// answerStaticPrefix is the shared instruction block for answer
// summarization calls.
const answerStaticPrefix = `You are a helpful assistant that converts database query results into clear, natural language answers.

Instructions:
- If the user asked for a specific number (e.g., "top 10"), show ALL of those results in your answer
- Format results in a numbered list with clear formatting
- Include all relevant data from each result
- Be complete and accurate
- Provide a clear answer that directly addresses the question

---END OF CACHED INSTRUCTIONS---`

// buildGenerationPrompt appends the dynamic parts to the cached prefix:
// conversation history, the question, and the previous attempt's failure
// reason as corrective feedback.
func buildGenerationPrompt(staticPrefix, question string, history []Turn, previousError string) string {
	var sb strings.Builder
	sb.WriteString(staticPrefix)

	if len(history) > 0 {
		sb.WriteString("\n\nCONVERSATION HISTORY:")
		for _, turn := range history {
			fmt.Fprintf(&sb, "\nQ: %s\nA: %s", turn.Question, turn.Answer)
		}
	}

	fmt.Fprintf(&sb, "\n\nQuestion: %s", question)

	if previousError != "" {
		fmt.Fprintf(&sb, "\n\nYour previous pipeline failed because: %s\nGenerate a corrected pipeline.", previousError)
	}

	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// buildAnswerPrompt embeds the question, the executed pipeline, and a
// truncated result sample. The true total row count is always stated so the
// narrated answer cannot silently imply fewer results exist than were found.
func buildAnswerPrompt(question string, pipeline Pipeline, sample []Document, total int) string {
	pipelineJSON, err := json.MarshalIndent(pipeline, "", "  ")
	if err != nil {
		pipelineJSON = []byte(pipeline.String())
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		sampleJSON = []byte("[]")
	}

	return fmt.Sprintf(`%s

Question: %s

MongoDB Pipeline: %s

Query Results (showing %d of %d total):
%s

Provide your answer:`, answerStaticPrefix, question, pipelineJSON, len(sample), total, sampleJSON)
}
