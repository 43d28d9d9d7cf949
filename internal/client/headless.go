package client

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"kartnet/pkg/logger"
)

const statsLogInterval = 5 * time.Second

// RunHeadless 无界面模式：按 tick 间隔推进预测，直到 ctx 取消或连接断开
func RunHeadless(ctx context.Context, racer *Racer) error {
	interval := time.Second / time.Duration(racer.TickRate())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(statsLogInterval)
	defer statsTicker.Stop()

	network := racer.Network()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-network.Errors():
			return err

		case <-network.Done():
			return ErrNotConnected

		case now := <-ticker.C:
			racer.Advance(now.Sub(last))
			last = now

			for {
				id, ok := network.ReceivePlayerLeave()
				if !ok {
					break
				}
				logger.Log.WithField("player", id).Info("玩家离开")
			}

		case <-statsTicker.C:
			logStats(racer)
		}
	}
}

func logStats(racer *Racer) {
	stats := racer.Stats()
	net := racer.Network().Stats()
	pose := racer.Kart().GetPose()

	logger.Log.WithFields(logrus.Fields{
		"tick":      racer.Predictor().CurrentTick(),
		"state":     stats.State,
		"corrected": stats.Reconcile.Corrected,
		"accepted":  stats.Reconcile.Accepted,
		"replayed":  stats.Reconcile.ReplayedTicks,
		"dropped":   stats.DroppedTicks,
		"rtt_ms":    net.RTT.Milliseconds(),
		"remotes":   racer.Network().Remotes().Len(),
		"x":         pose.Position[0],
		"z":         pose.Position[2],
	}).Info("预测状态")
}
