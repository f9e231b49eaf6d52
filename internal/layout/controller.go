// Package layout 根据终端宽度与用户意图推导侧栏可见性
// Package layout derives sidebar visibility from terminal width and user intent.
package layout

import "sync"

// DefaultBreakpoint 窄屏阈值（列）/ DefaultBreakpoint is the narrow threshold in columns
const DefaultBreakpoint = 80

// View 某一时刻的布局 / View is the layout at one moment
type View struct {
	Width       int
	Narrow      bool
	SidebarOpen bool
}

// Controller 不读写任何会话数据，可并发使用
// Controller never touches session data and is safe for concurrent use
type Controller struct {
	mu          sync.Mutex
	breakpoint  int
	width       int
	narrow      bool
	sidebarOpen bool
}

func New(width, breakpoint int) *Controller {
	if breakpoint <= 0 {
		breakpoint = DefaultBreakpoint
	}
	narrow := width < breakpoint
	return &Controller{
		breakpoint:  breakpoint,
		width:       width,
		narrow:      narrow,
		sidebarOpen: !narrow,
	}
}

// Resize 重新计算窄屏状态；宽屏总是显示侧栏
// Resize recomputes narrowness; a wide layout always shows the sidebar
func (c *Controller) Resize(width int) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.width = width
	c.narrow = width < c.breakpoint
	if !c.narrow {
		c.sidebarOpen = true
	}
	return c.viewLocked()
}

// CollapseIfNarrow 在窄屏上关闭侧栏（新建或切换会话时调用）
// CollapseIfNarrow closes the sidebar on narrow layouts (on create or switch)
func (c *Controller) CollapseIfNarrow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.narrow {
		c.sidebarOpen = false
	}
}

// Toggle 用户显式切换侧栏；宽屏上侧栏保持打开
// Toggle flips the sidebar on user request; wide layouts keep it open
func (c *Controller) Toggle() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.narrow {
		c.sidebarOpen = !c.sidebarOpen
	}
	return c.viewLocked()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) SidebarOpen() bool {
	return c.View().SidebarOpen
}

func (c *Controller) viewLocked() View {
	return View{Width: c.width, Narrow: c.narrow, SidebarOpen: c.sidebarOpen}
}
