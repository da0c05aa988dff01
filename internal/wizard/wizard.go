package wizard

// Wizard 向导状态：固定步骤表上的当前下标，只能前进或后退一步
type Wizard struct {
	steps []StepMeta
	index int
}

// New 创建向导，index 越界时收敛到合法范围
func New(steps []StepMeta, index int) *Wizard {
	w := &Wizard{steps: steps}
	w.index = w.clamp(index)
	return w
}

func (w *Wizard) clamp(i int) int {
	if i < 0 || len(w.steps) == 0 {
		return 0
	}
	if i > len(w.steps)-1 {
		return len(w.steps) - 1
	}
	return i
}

// Next 前进一步，已在最后一步时不变
func (w *Wizard) Next() {
	w.index = w.clamp(w.index + 1)
}

// Back 后退一步，已在第一步时不变
func (w *Wizard) Back() {
	w.index = w.clamp(w.index - 1)
}

func (w *Wizard) Index() int {
	return w.index
}

func (w *Wizard) Total() int {
	return len(w.steps)
}

// Current 当前步骤，步骤表为空时返回零值
func (w *Wizard) Current() StepMeta {
	if len(w.steps) == 0 {
		return StepMeta{}
	}
	return w.steps[w.index]
}

func (w *Wizard) IsLast() bool {
	return w.index == len(w.steps)-1
}

func (w *Wizard) Steps() []StepMeta {
	out := make([]StepMeta, len(w.steps))
	copy(out, w.steps)
	return out
}

// EntryParams 页面加载时携带的查询参数（支付跳转返回）
type EntryParams struct {
	ProfileID       string
	PaymentSuccess  bool
	PaymentCanceled bool
}

// IsPaymentReturn 是否从外部支付页返回
func (e EntryParams) IsPaymentReturn() bool {
	return e.ProfileID != "" && (e.PaymentSuccess || e.PaymentCanceled)
}

// InitialIndex 计算初始下标。
// 支付返回时直接落在订阅步骤；其余情况总是从 0 开始，
// 即使资料已经完成了若干步骤（刷新页面不会恢复进度）。
func InitialIndex(steps []StepMeta, entry EntryParams) int {
	if entry.IsPaymentReturn() {
		if i := IndexOfKind(steps, KindSubscribe); i >= 0 {
			return i
		}
	}
	return 0
}
