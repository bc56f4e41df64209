package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"sql2csv/internal/adapter"
)

const (
	// DefaultMinConfidence 低于该置信度的候选关系被丢弃
	DefaultMinConfidence = 0.5
	// DefaultSampleSize 值包含度检查的去重样本数
	DefaultSampleSize = 1000
)

// Evidence 关系证据
type Evidence struct {
	Type        string  `json:"type"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// InferredRelation 推断出的外键关系
type InferredRelation struct {
	adapter.ForeignKey
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// RelationInferer 关系推断器，用于没有声明外键的库
type RelationInferer struct {
	db            adapter.DBAdapter
	logger        zerolog.Logger
	minConfidence float64
	sampleSize    int
}

// NewRelationInferer 创建推断器
func NewRelationInferer(db adapter.DBAdapter, logger zerolog.Logger) *RelationInferer {
	return &RelationInferer{
		db:            db,
		logger:        logger.With().Str("component", "relations").Str("database", db.Name()).Logger(),
		minConfidence: DefaultMinConfidence,
		sampleSize:    DefaultSampleSize,
	}
}

// InferRelationships 推断表间关系
//
// 只比较非主键列与其他表的单列主键，已声明的外键会被跳过。
func (r *RelationInferer) InferRelationships(ctx context.Context, tables []adapter.Table, declared []adapter.ForeignKey) ([]InferredRelation, error) {
	known := make(map[string]bool, len(declared))
	for _, fk := range declared {
		known[relationKey(fk)] = true
	}

	// 构建主键映射，复合主键不参与推断
	pkMap := make(map[string]adapter.Column)
	for _, table := range tables {
		var pks []adapter.Column
		for _, col := range table.Columns {
			if col.IsPrimaryKey {
				pks = append(pks, col)
			}
		}
		if len(pks) == 1 {
			pkMap[table.Name] = pks[0]
		}
	}

	relations := []InferredRelation{}
	comparisons := 0
	for _, from := range tables {
		for _, fromCol := range from.Columns {
			if fromCol.IsPrimaryKey {
				continue
			}
			for _, to := range tables {
				toCol, ok := pkMap[to.Name]
				if !ok || to.Name == from.Name {
					continue
				}
				if err := ctx.Err(); err != nil {
					return nil, adapter.Cancelled(err)
				}

				fk := adapter.ForeignKey{FromTable: from.Name, FromColumn: fromCol.Name, ToTable: to.Name, ToColumn: toCol.Name}
				if known[relationKey(fk)] {
					continue
				}
				comparisons++

				rel, ok := r.calculateRelationship(ctx, fk, fromCol, toCol)
				if ok {
					relations = append(relations, rel)
				}
			}
		}
	}

	r.logger.Debug().Int("comparisons", comparisons).Int("relations", len(relations)).Msg("Inferred relationships")
	return relations, nil
}

// calculateRelationship 计算两列之间的关系
func (r *RelationInferer) calculateRelationship(ctx context.Context, fk adapter.ForeignKey, fromCol, toCol adapter.Column) (InferredRelation, bool) {
	// 类型必须兼容
	typeScore := calculateTypeMatch(fromCol, toCol)
	if typeScore == 0 {
		return InferredRelation{}, false
	}

	rel := InferredRelation{ForeignKey: fk}
	rel.Evidence = append(rel.Evidence, Evidence{
		Type:        "type_match",
		Score:       typeScore,
		Description: fmt.Sprintf("%s ↔ %s", fromCol.DataType, toCol.DataType),
	})
	total := typeScore * 0.2

	// 命名相似度 (权重 0.3)
	nameScore := math.Max(
		calculateNameSimilarity(fromCol.Name, toCol.Name),
		calculateNameSimilarity(fromCol.Name, singular(fk.ToTable)+toCol.Name),
	)
	if nameScore > 0 {
		rel.Evidence = append(rel.Evidence, Evidence{
			Type:        "naming_similarity",
			Score:       nameScore,
			Description: fmt.Sprintf("%s ↔ %s.%s", fromCol.Name, fk.ToTable, toCol.Name),
		})
		total += nameScore * 0.3
	}

	// 值集合包含 (权重 0.5)
	containment, err := r.calculateValueContainment(ctx, fk)
	if err != nil {
		r.logger.Debug().Err(err).Str("from", fk.FromTable+"."+fk.FromColumn).Msg("Value containment unavailable")
	} else if containment > 0 {
		rel.Evidence = append(rel.Evidence, Evidence{
			Type:        "value_containment",
			Score:       containment,
			Description: fmt.Sprintf("%.1f%% of values found in %s", containment*100, fk.ToTable),
		})
		total += containment * 0.5
	}

	if total < r.minConfidence {
		return InferredRelation{}, false
	}
	rel.Confidence = total
	return rel, true
}

// calculateNameSimilarity 计算命名相似度
func calculateNameSimilarity(name1, name2 string) float64 {
	n1 := normalizeName(name1)
	n2 := normalizeName(name2)
	if n1 == "" || n2 == "" {
		return 0
	}

	// 完全匹配
	if n1 == n2 {
		return 1.0
	}

	// 包含关系
	if strings.Contains(n1, n2) || strings.Contains(n2, n1) {
		return 0.8
	}

	maxLen := math.Max(float64(len([]rune(n1))), float64(len([]rune(n2))))
	distance := levenshtein.DistanceForStrings([]rune(n1), []rune(n2), levenshtein.DefaultOptions)
	similarity := 1.0 - float64(distance)/maxLen
	if similarity > 0.7 {
		return similarity
	}
	return 0
}

func normalizeName(name string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(name))
}

// singular 粗略去掉英文复数后缀
func singular(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(lower, "ses") && len(name) > 3:
		return name[:len(name)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss") && len(name) > 1:
		return name[:len(name)-1]
	}
	return name
}

// calculateTypeMatch 同一分类为 1，未分类但声明相同为 0.6
func calculateTypeMatch(col1, col2 adapter.Column) float64 {
	c1, c2 := col1.Category(), col2.Category()
	switch {
	case c1 != c2:
		return 0
	case c1 == adapter.CategoryBlob:
		return 0
	case c1 != adapter.CategoryOther:
		return 1.0
	case strings.EqualFold(strings.TrimSpace(col1.DataType), strings.TrimSpace(col2.DataType)):
		return 0.6
	}
	return 0
}

// calculateValueContainment 采样检查来源列的去重值有多少存在于目标主键中
func (r *RelationInferer) calculateValueContainment(ctx context.Context, fk adapter.ForeignKey) (float64, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN v IN (SELECT %[1]s FROM %[2]s) THEN 1 ELSE 0 END), 0)
		FROM (SELECT DISTINCT %[3]s AS v FROM %[4]s WHERE %[3]s IS NOT NULL LIMIT ?)
	`,
		adapter.QuoteIdent(fk.ToColumn), adapter.QuoteIdent(fk.ToTable),
		adapter.QuoteIdent(fk.FromColumn), adapter.QuoteIdent(fk.FromTable),
	)

	var sampled, matched int64
	if err := r.db.ScanRow(ctx, query, []any{r.sampleSize}, &sampled, &matched); err != nil {
		return 0, err
	}
	if sampled == 0 {
		return 0, nil
	}
	return float64(matched) / float64(sampled), nil
}

// relationKey 声明外键可以省略目标列，只按来源列和目标表去重
func relationKey(fk adapter.ForeignKey) string {
	return strings.ToLower(fk.FromTable + "." + fk.FromColumn + "->" + fk.ToTable)
}
