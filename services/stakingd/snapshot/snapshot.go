package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"

	"stakeledger/native/staking"
)

const digestDomain = "stakeledger/snapshot/v1"

// Snapshot is a point-in-time copy of the pool and every staker record in
// address order.
type Snapshot struct {
	Config  *staking.Config
	Stakers []*staking.Staker
	Digest  [32]byte
}

// DigestHex returns the hex encoded digest.
func (s *Snapshot) DigestHex() string {
	return hex.EncodeToString(s.Digest[:])
}

// Take reads the pool from st. Callers wanting a consistent view pass a
// transaction or a store nothing else writes to.
func Take(st staking.State) (*Snapshot, error) {
	cfg, err := st.Config()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Config: cfg}
	err = st.RangeStakers("", 0, func(s *staking.Staker) error {
		snap.Stakers = append(snap.Stakers, s.Clone())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: range stakers: %w", err)
	}
	snap.Digest = digest(cfg, snap.Stakers)
	return snap, nil
}

// digest hashes the pool totals and each staker record with length-prefixed
// fields, so two ledgers agree on the digest iff they hold the same balances.
func digest(cfg *staking.Config, stakers []*staking.Staker) [32]byte {
	buf := new(bytes.Buffer)
	writeField(buf, []byte(digestDomain))
	writeField(buf, []byte(cfg.Strategy))
	writeField(buf, []byte(cfg.StakeToken))
	writeField(buf, []byte(cfg.RewardToken))
	writeBig(buf, cfg.PoolStakeTotal)
	writeBig(buf, cfg.PoolRewardHeld)
	for _, s := range stakers {
		writeField(buf, []byte(s.Address))
		writeBig(buf, s.Amount)
		writeBig(buf, s.Reward)
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], s.LastAccrual)
		writeField(buf, ts[:])
	}
	return blake3.Sum256(buf.Bytes())
}

func writeField(buf *bytes.Buffer, data []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(data)))
	buf.Write(length[:])
	buf.Write(data)
}

func writeBig(buf *bytes.Buffer, v *big.Int) {
	if v == nil {
		writeField(buf, nil)
		return
	}
	writeField(buf, v.Bytes())
}

type parquetRow struct {
	Address     string  `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      string  `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reward      string  `parquet:"name=reward, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastAccrual int64   `parquet:"name=last_accrual, type=INT64"`
	Share       float64 `parquet:"name=share, type=DOUBLE"`
}

// WriteParquet stores the staker records at path. Balances are written as
// decimal strings to keep full precision; share is the staker's fraction of
// the pool stake.
func (s *Snapshot) WriteParquet(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("snapshot: create dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("snapshot: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	total := new(big.Float)
	if s.Config != nil && s.Config.PoolStakeTotal != nil {
		total.SetInt(s.Config.PoolStakeTotal)
	}
	for _, staker := range s.Stakers {
		row := &parquetRow{
			Address:     staker.Address,
			Amount:      staker.Amount.String(),
			Reward:      staker.Reward.String(),
			LastAccrual: int64(staker.LastAccrual),
		}
		if total.Sign() > 0 {
			share, _ := new(big.Float).Quo(new(big.Float).SetInt(staker.Amount), total).Float64()
			row.Share = share
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("snapshot: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: close parquet file: %w", err)
	}
	return nil
}
