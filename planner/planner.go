// Package planner turns a caller's filter request into the index that
// should serve it.
//
// Every plan is scoped: a request must name a conversation (chatId, the
// shard key) or a single message (msgId). Requests naming neither are
// rejected with models.ErrUnscopedQuery instead of being run as a
// scatter-gather over every shard.
package planner

import (
	"fmt"
	"strings"

	"msgstore/indexes"
	"msgstore/models"
	"msgstore/shard"
)

// Request is a query against the message collection. Zero values mean "no
// filter"; StartTime and EndTime bound msgCreateTime inclusively.
type Request struct {
	ChatID     string
	MsgID      string
	FromUserID string
	ToUserID   string
	Content    string
	Status     *models.MsgStatus
	Format     *models.MsgFormat
	Withdraw   *models.WithdrawFlag
	StartTime  int64
	EndTime    int64
	Limit      int
	Cursor     string
}

// Criteria are the predicates a plan applies. The chosen index serves a
// prefix of them; the rest are residual filters on the scanned entries.
type Criteria struct {
	ChatID     string
	MsgID      string
	FromUserID string
	ToUserID   string
	Content    string
	Status     *models.MsgStatus
	Format     *models.MsgFormat
	Withdraw   *models.WithdrawFlag
	StartTime  int64
	EndTime    int64
}

// Matches evaluates the criteria against one record.
func (c Criteria) Matches(rec *models.MessageRecord) bool {
	switch {
	case c.ChatID != "" && rec.ChatID != c.ChatID:
		return false
	case c.MsgID != "" && rec.MsgID != c.MsgID:
		return false
	case c.FromUserID != "" && rec.FromUserID != c.FromUserID:
		return false
	case c.ToUserID != "" && rec.ToUserID != c.ToUserID:
		return false
	case c.Status != nil && rec.MsgStatus != *c.Status:
		return false
	case c.Format != nil && rec.MsgFormat != *c.Format:
		return false
	case c.Withdraw != nil && rec.WithdrawFlag != *c.Withdraw:
		return false
	case c.StartTime > 0 && rec.MsgCreateTime < c.StartTime:
		return false
	case c.EndTime > 0 && rec.MsgCreateTime > c.EndTime:
		return false
	case c.Content != "" && !strings.Contains(strings.ToLower(rec.MsgContent), strings.ToLower(c.Content)):
		return false
	}
	return true
}

// Plan is the planner's decision for one request.
type Plan struct {
	Index       indexes.Declaration
	Criteria    Criteria
	After       *Cursor
	Limit       int
	PointLookup bool
	// Shard is the single shard holding the conversation. It is empty only for
	// msgId point lookups without a chatId, which the store broadcasts.
	Shard string
}

// Targeted reports whether the plan touches a single shard.
func (p Plan) Targeted() bool {
	return p.Shard != ""
}

func (p Plan) String() string {
	target := p.Shard
	if target == "" {
		target = "all shards"
	}
	return fmt.Sprintf("%s %s limit=%d on %s", p.Index.Name, p.Index.KeySpec(), p.Limit, target)
}

type Limits struct {
	Default int
	Max     int
}

var DefaultLimits = Limits{Default: 20, Max: 200}

type Planner struct {
	router *shard.Router
	limits Limits
	decls  map[string]indexes.Declaration
}

func New(router *shard.Router, limits Limits) *Planner {
	if limits.Default <= 0 {
		limits.Default = DefaultLimits.Default
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}
	decls := make(map[string]indexes.Declaration)
	for _, d := range indexes.Required(router.IsSharded()) {
		decls[d.Name] = d
	}
	return &Planner{router: router, limits: limits, decls: decls}
}

// Plan selects the narrowest declared index whose leading fields cover the
// request's filters.
func (p *Planner) Plan(req Request) (Plan, error) {
	if err := validate(req); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Criteria: Criteria{
			ChatID:     req.ChatID,
			MsgID:      req.MsgID,
			FromUserID: req.FromUserID,
			ToUserID:   req.ToUserID,
			Content:    req.Content,
			Status:     req.Status,
			Format:     req.Format,
			Withdraw:   req.Withdraw,
			StartTime:  req.StartTime,
			EndTime:    req.EndTime,
		},
		Limit: p.limit(req.Limit),
	}

	if req.Cursor != "" {
		c, err := DecodeCursor(req.Cursor)
		if err != nil {
			return Plan{}, err
		}
		plan.After = &c
	}

	if req.ChatID == "" {
		if req.MsgID == "" {
			return Plan{}, fmt.Errorf("%w: supply chatId or msgId", models.ErrUnscopedQuery)
		}
		plan.Index = p.decls[indexes.MsgID]
		plan.PointLookup = true
		plan.Limit = 1
		return plan, nil
	}

	plan.Shard = p.router.RouteFor(req.ChatID)
	plan.Index = p.decls[p.chooseScoped(req)]
	if req.MsgID != "" {
		plan.PointLookup = true
		plan.Limit = 1
	}
	return plan, nil
}

// chooseScoped picks the index for a request that carries chatId. Sender and
// receiver lead their indexes and are the most selective, so they win; a
// single attribute filter uses its narrow index and two or more use the
// combined one as a prefix-compatible scan.
func (p *Planner) chooseScoped(req Request) string {
	switch {
	case req.MsgID != "":
		return indexes.ChatIDCreateTime
	case req.FromUserID != "":
		return indexes.FromUserChatCreateTime
	case req.ToUserID != "":
		return indexes.ToUserChatCreateTime
	}

	attrs := 0
	for _, set := range []bool{req.Status != nil, req.Format != nil, req.Withdraw != nil} {
		if set {
			attrs++
		}
	}
	switch {
	case attrs >= 2:
		return indexes.ChatIDCombined
	case req.Status != nil:
		return indexes.ChatIDStatusCreateTime
	case req.Format != nil:
		return indexes.ChatIDFormatCreateTime
	case req.Withdraw != nil:
		return indexes.ChatIDWithdrawCreateTime
	case req.Content != "":
		return indexes.ChatIDContent
	}
	return indexes.ChatIDCreateTime
}

func (p *Planner) limit(n int) int {
	switch {
	case n <= 0:
		return p.limits.Default
	case n > p.limits.Max:
		return p.limits.Max
	}
	return n
}

func validate(req Request) error {
	switch {
	case req.Status != nil && !req.Status.Valid():
		return fmt.Errorf("%w: %s: %s", models.ErrInvalidFieldValue, models.FieldMsgStatus, req.Status)
	case req.Format != nil && !req.Format.Valid():
		return fmt.Errorf("%w: %s: %s", models.ErrInvalidFieldValue, models.FieldMsgFormat, req.Format)
	case req.Withdraw != nil && !req.Withdraw.Valid():
		return fmt.Errorf("%w: %s: %s", models.ErrInvalidFieldValue, models.FieldWithdrawFlag, req.Withdraw)
	case req.StartTime < 0 || req.EndTime < 0:
		return fmt.Errorf("%w: %s: negative time bound", models.ErrInvalidFieldValue, models.FieldMsgCreateTime)
	case req.StartTime > 0 && req.EndTime > 0 && req.StartTime > req.EndTime:
		return fmt.Errorf("%w: %s: startTime after endTime", models.ErrInvalidFieldValue, models.FieldMsgCreateTime)
	}
	return nil
}
