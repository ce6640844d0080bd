package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"robot-telemetry/pkg/metrics"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/simulator"
	"robot-telemetry/pkg/store"
)

var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrRobotNotFound  = errors.New("robot not found")
	ErrRobotInactive  = errors.New("robot is not active")
)

// auditTimeout bounds the best-effort store writes done after a command was applied.
const auditTimeout = 2 * time.Second

// Notifier delivers a message to a single session.
type Notifier interface {
	SendTo(sessionID string, msg model.WSMessage) error
}

// Channel validates operator commands and applies them to the simulated fleet.
type Channel struct {
	fleet  *simulator.Fleet
	store  store.Store
	notify Notifier
	obs    metrics.Observer
	now    func() time.Time

	locks sync.Map // robot id -> *sync.Mutex
}

// New wires a command channel. st and notify may be nil.
func New(fleet *simulator.Fleet, st store.Store, notify Notifier, obs metrics.Observer) *Channel {
	if obs == nil {
		obs = metrics.Nop{}
	}
	return &Channel{fleet: fleet, store: st, notify: notify, obs: obs, now: time.Now}
}

// InvalidMessage is the feedback for a command outside the accepted set.
func InvalidMessage() string {
	names := make([]string, 0, len(model.ValidCommands))
	for _, c := range model.ValidCommands {
		names = append(names, string(c))
	}
	return "Invalid command. Valid commands: " + strings.Join(names, ", ")
}

// Submit is Execute without the error classification, for transports that only relay the result.
func (c *Channel) Submit(ctx context.Context, sessionID, robotID, raw string) model.CommandResult {
	res, _ := c.Execute(ctx, sessionID, robotID, raw)
	return res
}

// Execute validates raw and applies it to robotID (the default robot when empty). The result is
// also pushed as command_result to sessionID when set. The returned error classifies a failed
// result for callers that map it to a status code.
func (c *Channel) Execute(ctx context.Context, sessionID, robotID, raw string) (model.CommandResult, error) {
	if robotID == "" {
		robotID = model.DefaultRobotID
	}
	cmd, ok := model.ParseCommand(raw)
	res := model.CommandResult{Command: cmd, RobotID: robotID}
	var err error
	switch {
	case !ok:
		err = ErrInvalidCommand
		res.Message = InvalidMessage()
	default:
		unlock := func() {}
		if _, known := c.fleet.Get(robotID); known {
			unlock = c.lockRobot(robotID)
		}
		var robot model.Robot
		robot, err = c.fleet.Apply(robotID, cmd)
		switch {
		case errors.Is(err, simulator.ErrUnknownRobot):
			err = ErrRobotNotFound
			res.Message = fmt.Sprintf("Robot '%s' not found", robotID)
		case errors.Is(err, simulator.ErrInactiveRobot):
			err = ErrRobotInactive
			res.Message = fmt.Sprintf("Robot '%s' is not active", robotID)
		case err != nil:
			res.Message = err.Error()
		default:
			res.Success = true
			res.Message = successMessage(cmd)
			c.persistRobot(ctx, robot)
		}
		unlock()
	}

	label := string(cmd)
	if !ok {
		label = "invalid"
	}
	c.obs.CommandSubmitted(label, res.Success)
	log.Printf("command robot=%s cmd=%q success=%v: %s", robotID, raw, res.Success, res.Message)
	c.audit(ctx, res)

	if sessionID != "" && c.notify != nil {
		if nerr := c.notify.SendTo(sessionID, model.WSMessage{Type: model.MsgCommandResult, Payload: res}); nerr != nil {
			log.Printf("command result for session %s not delivered: %v", sessionID, nerr)
		}
	}
	return res, err
}

func (c *Channel) audit(ctx context.Context, res model.CommandResult) {
	if c.store == nil || res.Command == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	rec := model.CommandRecord{
		RobotID:    res.RobotID,
		Command:    string(res.Command),
		Success:    res.Success,
		Message:    res.Message,
		ExecutedAt: c.now().UTC(),
	}
	if _, err := c.store.InsertCommand(ctx, rec); err != nil {
		c.obs.StoreError("insert_command")
		log.Printf("command audit failed robot=%s: %v", res.RobotID, err)
	}
}

// lockRobot serializes apply and persist per robot so the stored current_command matches the fleet.
func (c *Channel) lockRobot(robotID string) func() {
	v, _ := c.locks.LoadOrStore(robotID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// persistRobot keeps current_command in the store so a restart resumes the same behaviour.
func (c *Channel) persistRobot(ctx context.Context, r model.Robot) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	if _, err := c.store.UpdateRobot(ctx, r); err != nil {
		c.obs.StoreError("update_robot")
		log.Printf("persist robot %s failed: %v", r.ID, err)
	}
}

func successMessage(cmd model.Command) string {
	switch cmd {
	case model.CommandStart:
		return "Robot started"
	case model.CommandStop:
		return "Robot stopped"
	default:
		return "Robot reset"
	}
}
