package database

import (
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey      = "otel:span"
	startTimeKey = "otel:start_time"
	maxSQLLength = 500
)

// OTELPlugin GORM OpenTelemetry 插件，不记录 SQL 参数
type OTELPlugin struct {
	tracer        trace.Tracer
	queries       metric.Int64Counter
	queryDuration metric.Float64Histogram
	serviceName   string
}

// NewOTELPlugin 创建插件实例
func NewOTELPlugin(serviceName string) *OTELPlugin {
	meter := otel.Meter(serviceName + ".gorm")

	queries, _ := meter.Int64Counter(
		"db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	queryDuration, _ := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)

	return &OTELPlugin{
		tracer:        otel.Tracer(serviceName + ".gorm"),
		queries:       queries,
		queryDuration: queryDuration,
		serviceName:   serviceName,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after)
}

func (p *OTELPlugin) before(db *gorm.DB) {
	table := db.Statement.Table
	if table == "" {
		table = "unknown"
	}

	ctx, span := p.tracer.Start(db.Statement.Context, "db."+table,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("db.table", table),
		),
	)

	db.InstanceSet(startTimeKey, time.Now())
	db.InstanceSet(spanKey, span)
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := operationName(db.Statement.SQL.String())
	sql := db.Statement.SQL.String()
	if len(sql) > maxSQLLength {
		sql = sql[:maxSQLLength] + "..."
	}
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBStatement(sql),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)

	status := "success"
	if err := db.Error; err != nil && err != gorm.ErrRecordNotFound {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	labels := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	p.queries.Add(db.Statement.Context, 1, labels)
	if start, ok := db.InstanceGet(startTimeKey); ok {
		if t, ok := start.(time.Time); ok {
			p.queryDuration.Record(db.Statement.Context, time.Since(t).Seconds(), labels)
		}
	}
}

// operationName 从 SQL 取操作类型
func operationName(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return "db." + strings.ToLower(op)
		}
	}
	return "db.query"
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, serviceName string) error {
	return db.Use(NewOTELPlugin(serviceName))
}
