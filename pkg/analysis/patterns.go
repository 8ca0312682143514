package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

// QueryPattern is a plan-level observation with a remedy.
type QueryPattern struct {
	Pattern        string `json:"pattern"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation,omitempty"`
}

// AntiPattern is a statement-level smell with a suggestion and an example.
type AntiPattern struct {
	Issue       string `json:"issue"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
	Example     string `json:"example,omitempty"`
}

// DetectPatterns inspects an execution plan. A plan that cannot be
// interpreted yields no patterns.
func DetectPatterns(plan any) []QueryPattern {
	summary, err := InterpretPlan(plan)
	if err != nil {
		return nil
	}

	var patterns []QueryPattern
	for _, scan := range summary.Scans {
		if scan.InJoin {
			patterns = append(patterns, QueryPattern{
				Pattern:        "Join Without Index",
				Description:    fmt.Sprintf("The query joins with table '%s' without using an index.", scan.Table),
				Recommendation: "Add an index to the join columns in this table.",
			})
			continue
		}
		patterns = append(patterns, QueryPattern{
			Pattern:        "Full Table Scan",
			Description:    fmt.Sprintf("The query performs a full table scan on table '%s'.", scan.Table),
			Recommendation: "Consider adding an index to the columns used in WHERE clauses.",
		})
	}
	if summary.UsesTemporary {
		patterns = append(patterns, QueryPattern{
			Pattern:        "Temporary Table",
			Description:    "The query creates a temporary table, which can be memory-intensive.",
			Recommendation: "Consider simplifying the query or adding appropriate indexes.",
		})
	}
	if summary.UsesFilesort {
		patterns = append(patterns, QueryPattern{
			Pattern:        "Filesort",
			Description:    "The query uses a filesort operation, which can be slow for large datasets.",
			Recommendation: "Consider adding an index that matches your ORDER BY clause.",
		})
	}
	return patterns
}

type antiPatternRule struct {
	matches func(q string) bool
	result  AntiPattern
}

func regexRule(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

var antiPatternRules = []antiPatternRule{
	{
		matches: regexRule(`select\s+\*\s+from`),
		result: AntiPattern{
			Issue:       "SELECT *",
			Description: "Using SELECT * retrieves all columns, which can be inefficient when you only need specific columns.",
			Suggestion:  "Explicitly list only the columns you need.",
			Example:     "SELECT id, name, email FROM users WHERE active = 1",
		},
	},
	{
		matches: regexRule(`like\s+['"]%`),
		result: AntiPattern{
			Issue:       "LIKE with Leading Wildcard",
			Description: "Using LIKE with a leading wildcard (%) prevents the use of indexes.",
			Suggestion:  "Avoid using LIKE with leading wildcards, or consider using a full-text index.",
			Example:     "SELECT * FROM products WHERE name LIKE 'apple%' -- Good\nSELECT * FROM products WHERE name LIKE '%apple' -- Bad",
		},
	},
	{
		matches: func(q string) bool {
			return functionOnColumn(functionInWhere, q) || functionOnColumn(functionInJoin, q)
		},
		result: AntiPattern{
			Issue:       "Function on Indexed Column",
			Description: "Using functions on columns in WHERE or JOIN conditions prevents the use of indexes.",
			Suggestion:  "Avoid using functions on columns in WHERE or JOIN conditions.",
			Example:     "SELECT * FROM users WHERE YEAR(created_at) = 2023 -- Bad\nSELECT * FROM users WHERE created_at BETWEEN '2023-01-01' AND '2023-12-31' -- Good",
		},
	},
	{
		matches: regexRule(`(?s)where.*?\s+or\s+`),
		result: AntiPattern{
			Issue:       "OR Conditions",
			Description: "OR conditions can prevent the use of indexes in some cases.",
			Suggestion:  "Consider using UNION ALL instead of OR, or ensure both sides of the OR have indexes.",
			Example:     "SELECT * FROM users WHERE last_name = 'Smith' OR first_name = 'John' -- May not use indexes efficiently\n\nSELECT * FROM users WHERE last_name = 'Smith' UNION ALL SELECT * FROM users WHERE first_name = 'John' -- May be more efficient",
		},
	},
	{
		matches: regexRule(`where\s+[a-z0-9_.]+\s*=\s*['"][0-9]+['"]`),
		result: AntiPattern{
			Issue:       "Implicit Type Conversion",
			Description: "Comparing a numeric column to a string value causes implicit type conversion and prevents index usage.",
			Suggestion:  "Ensure the data types in comparisons match the column types.",
			Example:     "SELECT * FROM users WHERE id = '123' -- Bad (string comparison with numeric column)\nSELECT * FROM users WHERE id = 123 -- Good",
		},
	},
	{
		matches: regexRule(`not\s+in\s*\(|not\s+exists`),
		result: AntiPattern{
			Issue:       "NOT IN or NOT EXISTS",
			Description: "NOT IN and NOT EXISTS can be inefficient, especially with large subqueries.",
			Suggestion:  "Consider using LEFT JOIN with IS NULL instead.",
			Example:     "SELECT * FROM users WHERE id NOT IN (SELECT user_id FROM orders) -- Less efficient\n\nSELECT u.* FROM users u LEFT JOIN orders o ON u.id = o.user_id WHERE o.user_id IS NULL -- More efficient",
		},
	},
	{
		matches: func(q string) bool {
			return strings.Contains(q, "having") && !groupByPattern.MatchString(q)
		},
		result: AntiPattern{
			Issue:       "HAVING without GROUP BY",
			Description: "Using HAVING without GROUP BY treats the entire result set as one group, which may not be intended.",
			Suggestion:  "Add an appropriate GROUP BY clause or use WHERE instead if grouping is not needed.",
			Example:     "SELECT user_id, COUNT(*) FROM orders HAVING COUNT(*) > 5 -- Missing GROUP BY\n\nSELECT user_id, COUNT(*) FROM orders GROUP BY user_id HAVING COUNT(*) > 5 -- Correct",
		},
	},
	{
		matches: regexRule(`order\s+by\s+rand\s*\(\s*\)`),
		result: AntiPattern{
			Issue:       "ORDER BY RAND()",
			Description: "ORDER BY RAND() is extremely inefficient as it requires sorting the entire result set.",
			Suggestion:  "Use application code to randomize results, or consider other techniques like ORDER BY RAND() LIMIT for small result sets.",
			Example:     "-- Instead of:\nSELECT * FROM products ORDER BY RAND() LIMIT 5\n\n-- Consider:\nSELECT * FROM products WHERE id >= (SELECT FLOOR(RAND() * (SELECT MAX(id) FROM products))) ORDER BY id LIMIT 5",
		},
	},
}

var (
	functionInWhere = regexp.MustCompile(`where\s+([a-z_][a-z0-9_]*)\s*\([^)]+\)`)
	functionInJoin  = regexp.MustCompile(`\son\s+([a-z_][a-z0-9_]*)\s*\([^)]+\)`)
	groupByPattern  = regexp.MustCompile(`group\s+by`)

	// Keywords that may precede a parenthesis without being a function call.
	nonFunctionWords = map[string]bool{"exists": true, "not": true, "in": true, "select": true}
)

func functionOnColumn(re *regexp.Regexp, q string) bool {
	for _, m := range re.FindAllStringSubmatch(q, -1) {
		if !nonFunctionWords[m[1]] {
			return true
		}
	}
	return false
}

// DetectAntiPatterns matches the statement against known anti-patterns, in a
// fixed order.
func DetectAntiPatterns(sql string) []AntiPattern {
	q := strings.ToLower(sql)
	var found []AntiPattern
	for _, rule := range antiPatternRules {
		if rule.matches(q) {
			found = append(found, rule.result)
		}
	}
	return found
}
