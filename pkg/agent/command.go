package agent

import (
	"errors"
	"time"

	"github.com/agrosmart/edge-go/pkg/command"
	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/valve"
)

// inbound is one command handed from the transport callback to the
// network loop. err carries parse failures that still need an error
// acknowledgement.
type inbound struct {
	cmd command.Command
	err error
}

// handleMessage runs on the transport's receive path. It only parses
// and hands off; all side effects happen in the network loop so the
// transport's internal locks are never reentered from their own
// callback.
func (a *Agent) handleMessage(_ string, payload []byte) {
	cmd, err := command.Parse(payload, a.cfg.DeviceID)
	if errors.Is(err, command.ErrNotForDevice) {
		// Addressed elsewhere. Dropped without acknowledgement.
		return
	}

	select {
	case a.commands <- inbound{cmd: cmd, err: err}:
	default:
		a.logger.Log(log.Event{
			Category: log.CategoryCommand,
			Severity: log.SeverityWarning,
			Command:  &log.CommandEvent{CommandID: cmd.ID, Status: "dropped"},
			Error:    &log.ErrorEventData{Message: "command channel full", Op: "ingest"},
		})
	}
}

// drainCommands dispatches everything the transport delivered since the
// last pass.
func (a *Agent) drainCommands() {
	for {
		select {
		case in := <-a.commands:
			a.dispatch(in)
		default:
			return
		}
	}
}

// dispatch runs one command's lifecycle through the valve controller,
// emitting the received / started / done / error acknowledgement chain.
func (a *Agent) dispatch(in inbound) {
	cmd := in.cmd

	if in.err != nil {
		a.logCommand(cmd, command.StatusError, in.err.Error())
		a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusError, time.Now().Unix()).
			WithAction(cmd.RawAction, cmd.DurationS).
			WithError(in.err.Error()))
		return
	}

	a.logCommand(cmd, command.StatusReceived, "")
	a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusReceived, time.Now().Unix()).
		WithAction(cmd.RawAction, cmd.DurationS))

	switch cmd.Action {
	case command.ActionOpen:
		applied, err := a.valve.Open(cmd.DurationS, cmd.ID)
		if err != nil {
			// Forced close already happened inside the controller.
			a.logCommand(cmd, command.StatusError, err.Error())
			a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusError, time.Now().Unix()).
				WithAction(cmd.RawAction, cmd.DurationS).
				WithReason(command.ReasonFailsafe).
				WithError(err.Error()))
			return
		}
		a.logCommand(cmd, command.StatusStarted, "")
		a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusStarted, time.Now().Unix()).
			WithAction(cmd.RawAction, applied))

	case command.ActionStop:
		if err := a.valve.Close("stopped"); err != nil {
			a.logCommand(cmd, command.StatusError, err.Error())
			a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusError, time.Now().Unix()).
				WithAction(cmd.RawAction, 0).
				WithReason(command.ReasonFailsafe).
				WithError(err.Error()))
			return
		}
		a.logCommand(cmd, command.StatusDone, "")
		a.publishAck(command.NewAck(a.cfg.DeviceID, cmd.ID, command.StatusDone, time.Now().Unix()).
			WithAction(cmd.RawAction, 0).
			WithReason(command.ReasonStopped))
	}
}

// sessionEnded is the valve controller's session-end hook. It emits the
// terminal acknowledgement for the command that opened the valve, even
// when the close came from the supervisor or a later command.
func (a *Agent) sessionEnded(commandID, reason string) {
	ack := command.NewAck(a.cfg.DeviceID, commandID, command.StatusDone, time.Now().Unix())
	switch reason {
	case command.ReasonFailsafe:
		ack.Status = command.StatusError
		ack = ack.WithReason(command.ReasonFailsafe).WithError(valve.ErrLockTimeout.Error())
	default:
		ack = ack.WithReason(reason)
	}

	a.logger.Log(log.Event{
		Category: log.CategoryCommand,
		Command:  &log.CommandEvent{CommandID: commandID, Status: ack.Status, Reason: reason},
	})
	a.publishAck(ack)
}

// publishAck sends an acknowledgement. Acknowledgements are not queued:
// a failed publish is logged and dropped, delivery guarantees apply to
// telemetry only.
func (a *Agent) publishAck(ack command.Ack) {
	data, err := ack.Encode()
	if err != nil {
		return
	}
	if err := a.deps.Transport.Publish(a.cfg.Topics.Ack, data); err != nil {
		a.logger.Log(log.Event{
			Category: log.CategoryCommand,
			Severity: log.SeverityWarning,
			Command:  &log.CommandEvent{CommandID: ack.CommandID, Status: ack.Status},
			Error:    &log.ErrorEventData{Message: err.Error(), Op: "publish-ack"},
		})
	}
}

func (a *Agent) logCommand(cmd command.Command, status, errMsg string) {
	ev := log.Event{
		Category: log.CategoryCommand,
		Command: &log.CommandEvent{
			CommandID: cmd.ID,
			Action:    cmd.RawAction,
			DurationS: cmd.DurationS,
			Status:    status,
		},
	}
	if errMsg != "" {
		ev.Severity = log.SeverityWarning
		ev.Error = &log.ErrorEventData{Message: errMsg, Op: "command"}
	}
	a.logger.Log(ev)
}
