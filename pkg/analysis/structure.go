package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/mysql-insight/pkg/logging"
)

// CategoryForeignKeys is the metadata category for foreign key lookups.
const CategoryForeignKeys = "foreign_keys"

const (
	manyIndexesThreshold = 5
	largeTableBytes      = 100 * 1024 * 1024
)

// ForeignKey is one referencing column of a foreign key constraint.
type ForeignKey struct {
	TableName        string `json:"table_name"`
	ColumnName       string `json:"column_name"`
	ReferencedTable  string `json:"referenced_table_name"`
	ReferencedColumn string `json:"referenced_column_name"`
	UpdateRule       string `json:"update_rule"`
	DeleteRule       string `json:"delete_rule"`
}

// DatabaseStructure is the catalog of the current schema.
type DatabaseStructure struct {
	Tables      []TableStatistics
	Columns     []ColumnDescriptor
	Indexes     []IndexDescriptor
	ForeignKeys []ForeignKey
	Errors      map[string]error
}

// GetDatabaseStructure reads every table of the current schema. Only the
// table list is required; column, index and foreign key failures are
// recorded in Errors.
func (g *Gatherer) GetDatabaseStructure(ctx context.Context) (*DatabaseStructure, error) {
	rows, err := g.executor.ExecuteQuery(ctx, `SELECT table_name AS table_name, engine AS engine,
		table_rows AS table_rows, avg_row_length AS avg_row_length,
		data_length AS data_length, index_length AS index_length,
		auto_increment AS auto_increment, create_time AS create_time,
		update_time AS update_time, table_collation AS table_collation
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		ORDER BY table_name`)
	if err != nil {
		return nil, &MetadataFetchError{Category: CategoryStatistics, Err: err}
	}

	s := &DatabaseStructure{Errors: make(map[string]error)}
	for _, row := range rows {
		s.Tables = append(s.Tables, TableStatistics{
			TableName:     stringField(row, "table_name"),
			Rows:          intField(row, "table_rows"),
			AvgRowLength:  intField(row, "avg_row_length"),
			DataLength:    intField(row, "data_length"),
			IndexLength:   intField(row, "index_length"),
			AutoIncrement: intField(row, "auto_increment"),
			Engine:        stringField(row, "engine"),
			CreateTime:    stringField(row, "create_time"),
			UpdateTime:    stringField(row, "update_time"),
			Collation:     stringField(row, "table_collation"),
		})
	}

	columnRows, err := g.executor.ExecuteQuery(ctx, `SELECT table_name AS table_name, column_name AS column_name,
		column_type AS column_type, is_nullable AS is_nullable, column_key AS column_key,
		column_default AS column_default, extra AS extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		g.recordStructureFailure(s, CategorySchema, err)
	} else {
		for _, row := range columnRows {
			s.Columns = append(s.Columns, ColumnDescriptor{
				TableName:  stringField(row, "table_name"),
				ColumnName: stringField(row, "column_name"),
				ColumnType: stringField(row, "column_type"),
				Nullable:   strings.EqualFold(stringField(row, "is_nullable"), "YES"),
				Key:        stringField(row, "column_key"),
				Default:    optionalStringField(row, "column_default"),
				Extra:      stringField(row, "extra"),
			})
		}
	}

	indexRows, err := g.executor.ExecuteQuery(ctx, `SELECT table_name AS table_name, index_name AS index_name,
		GROUP_CONCAT(column_name ORDER BY seq_in_index) AS columns,
		index_type AS index_type, non_unique AS non_unique
		FROM information_schema.statistics
		WHERE table_schema = DATABASE()
		GROUP BY table_name, index_name, index_type, non_unique
		ORDER BY table_name, index_name`)
	if err != nil {
		g.recordStructureFailure(s, CategoryIndexes, err)
	} else {
		s.Indexes = indexDescriptorsFromRows(indexRows)
	}

	fkRows, err := g.executor.ExecuteQuery(ctx, `SELECT tc.table_name AS table_name, kcu.column_name AS column_name,
		kcu.referenced_table_name AS referenced_table_name,
		kcu.referenced_column_name AS referenced_column_name,
		rc.update_rule AS update_rule, rc.delete_rule AS delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.referential_constraints rc
			ON tc.constraint_name = rc.constraint_name
			AND tc.table_schema = rc.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = DATABASE()
		ORDER BY tc.table_name, kcu.column_name`)
	if err != nil {
		g.recordStructureFailure(s, CategoryForeignKeys, err)
	} else {
		for _, row := range fkRows {
			s.ForeignKeys = append(s.ForeignKeys, ForeignKey{
				TableName:        stringField(row, "table_name"),
				ColumnName:       stringField(row, "column_name"),
				ReferencedTable:  stringField(row, "referenced_table_name"),
				ReferencedColumn: stringField(row, "referenced_column_name"),
				UpdateRule:       stringField(row, "update_rule"),
				DeleteRule:       stringField(row, "delete_rule"),
			})
		}
	}

	return s, nil
}

func (g *Gatherer) recordStructureFailure(s *DatabaseStructure, category string, err error) {
	g.logger.Warn("Structure lookup failed",
		zap.String("category", category),
		zap.String("error", logging.SanitizeError(err)),
	)
	s.Errors[category] = &MetadataFetchError{Category: category, Err: err}
}

// FormatDatabaseStructure renders the schema overview, per-table details and
// structural recommendations.
func FormatDatabaseStructure(s *DatabaseStructure) string {
	var b strings.Builder
	b.WriteString("# MySQL Database Structure Analysis\n\n")

	b.WriteString("## Database Overview\n\n")
	fmt.Fprintf(&b, "- **Total Tables**: %d\n", len(s.Tables))
	fmt.Fprintf(&b, "- **Total Indexes**: %d\n", len(s.Indexes))
	fmt.Fprintf(&b, "- **Total Foreign Keys**: %d\n\n", len(s.ForeignKeys))

	if len(s.Tables) == 0 {
		b.WriteString("The current database has no tables.\n")
		return b.String()
	}

	engines := make(map[string]int)
	for _, t := range s.Tables {
		engine := t.Engine
		if engine == "" {
			engine = "Unknown"
		}
		engines[engine]++
	}
	names := make([]string, 0, len(engines))
	for e := range engines {
		names = append(names, e)
	}
	sort.Strings(names)
	b.WriteString("### Storage Engines\n\n")
	for _, e := range names {
		fmt.Fprintf(&b, "- **%s**: %d tables\n", e, engines[e])
	}
	b.WriteString("\n## Table Details\n\n")

	for _, t := range s.Tables {
		writeStructureTable(&b, s, t)
	}

	writeStructureRecommendations(&b, s)

	if len(s.Errors) > 0 {
		b.WriteString("## Metadata Unavailable\n\n")
		categories := make([]string, 0, len(s.Errors))
		for c := range s.Errors {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			fmt.Fprintf(&b, "- **%s**: %v\n", c, s.Errors[c])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeStructureTable(b *strings.Builder, s *DatabaseStructure, t TableStatistics) {
	fmt.Fprintf(b, "### %s\n\n", t.TableName)
	b.WriteString("#### General Information\n\n")
	engine := t.Engine
	if engine == "" {
		engine = "Unknown"
	}
	fmt.Fprintf(b, "- **Engine**: %s\n", engine)
	fmt.Fprintf(b, "- **Rows (approx)**: %s\n", derefInt(t.Rows))
	fmt.Fprintf(b, "- **Data Size**: %s\n", FormatBytes(t.DataLength))
	fmt.Fprintf(b, "- **Index Size**: %s\n", FormatBytes(t.IndexLength))
	if t.CreateTime != "" {
		fmt.Fprintf(b, "- **Created**: %s\n", t.CreateTime)
	}
	if t.UpdateTime != "" {
		fmt.Fprintf(b, "- **Last Updated**: %s\n", t.UpdateTime)
	}
	if t.AutoIncrement != nil {
		fmt.Fprintf(b, "- **Auto Increment**: %d\n", *t.AutoIncrement)
	}

	columns := newMarkdownTable("Column", "Type", "Nullable", "Key", "Default", "Extra")
	for _, c := range s.Columns {
		if c.TableName != t.TableName {
			continue
		}
		nullable := "NO"
		if c.Nullable {
			nullable = "YES"
		}
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		columns.add(c.ColumnName, c.ColumnType, nullable, c.Key, def, c.Extra)
	}
	if len(columns.rows) > 0 {
		b.WriteString("\n#### Columns\n\n")
		columns.render(b)
	}

	indexes := newMarkdownTable("Name", "Columns", "Type", "Unique")
	for _, idx := range s.Indexes {
		if idx.TableName != t.TableName {
			continue
		}
		unique := "No"
		if idx.Unique {
			unique = "Yes"
		}
		indexes.add(idx.IndexName, strings.Join(idx.Columns, ","), idx.IndexType, unique)
	}
	if len(indexes.rows) > 0 {
		b.WriteString("\n#### Indexes\n\n")
		indexes.render(b)
	}

	fks := newMarkdownTable("Column", "References", "On Update", "On Delete")
	for _, fk := range s.ForeignKeys {
		if fk.TableName != t.TableName {
			continue
		}
		fks.add(fk.ColumnName, fmt.Sprintf("%s(%s)", fk.ReferencedTable, fk.ReferencedColumn), fk.UpdateRule, fk.DeleteRule)
	}
	if len(fks.rows) > 0 {
		b.WriteString("\n#### Foreign Keys\n\n")
		fks.render(b)
	}
	b.WriteString("\n")
}

func writeStructureRecommendations(b *strings.Builder, s *DatabaseStructure) {
	var withoutPK []string
	indexCounts := make(map[string]int)
	for _, idx := range s.Indexes {
		indexCounts[idx.TableName]++
	}
	hasPK := make(map[string]bool)
	for _, c := range s.Columns {
		if c.Key == "PRI" {
			hasPK[c.TableName] = true
		}
	}

	var manyIndexes, large []TableStatistics
	for _, t := range s.Tables {
		if !s.hasFailed(CategorySchema) && !hasPK[t.TableName] {
			withoutPK = append(withoutPK, t.TableName)
		}
		if indexCounts[t.TableName] > manyIndexesThreshold {
			manyIndexes = append(manyIndexes, t)
		}
		if t.DataLength != nil && *t.DataLength > largeTableBytes {
			large = append(large, t)
		}
	}

	if len(withoutPK) == 0 && len(manyIndexes) == 0 && len(large) == 0 {
		return
	}
	b.WriteString("## Optimization Recommendations\n\n")

	if len(withoutPK) > 0 {
		b.WriteString("### Tables Without Primary Keys\n\n")
		b.WriteString("The following tables do not have primary keys, which can cause performance issues:\n\n")
		for _, t := range withoutPK {
			fmt.Fprintf(b, "- `%s`\n", t)
		}
		b.WriteString("\nConsider adding primary keys to these tables.\n\n")
	}
	if len(manyIndexes) > 0 {
		b.WriteString("### Tables With Many Indexes\n\n")
		b.WriteString("The following tables have a high number of indexes, which might impact INSERT/UPDATE performance:\n\n")
		for _, t := range manyIndexes {
			fmt.Fprintf(b, "- `%s`: %d indexes\n", t.TableName, indexCounts[t.TableName])
		}
		b.WriteString("\nConsider reviewing these indexes to ensure they are all necessary.\n\n")
	}
	if len(large) > 0 {
		b.WriteString("### Large Tables\n\n")
		b.WriteString("The following tables are large and may benefit from partitioning or archiving strategies:\n\n")
		for _, t := range large {
			fmt.Fprintf(b, "- `%s`: %s\n", t.TableName, FormatBytes(t.DataLength))
		}
		b.WriteString("\n")
	}
}

func (s *DatabaseStructure) hasFailed(category string) bool {
	_, ok := s.Errors[category]
	return ok
}
