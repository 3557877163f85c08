package uid

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// SnowflakeOptions MachineID 为空时从本机 IPv4 地址推导
type SnowflakeOptions struct {
	MachineID *int64 `cfg:"machineID"`
}

// SnowflakeGenerator 64 位结构：1 位符号 + 41 位时间戳 + 10 位机器 ID + 12 位序列号
// 以十进制字符串输出
type SnowflakeGenerator struct {
	state     int64 // 高位为时间戳，低 12 位为序列号
	machineID int64
	epoch     int64
}

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = (1 << sequenceBits) - 1
	maxMachineID = (1 << machineIDBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

var snowflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) *SnowflakeGenerator {
	var machineID int64
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	} else {
		machineID = machineIDFromIP()
	}

	return &SnowflakeGenerator{
		state:     (time.Now().UnixMilli() - snowflakeEpoch) << sequenceBits,
		machineID: machineID & maxMachineID,
		epoch:     snowflakeEpoch,
	}
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2])<<8 | int64(ipv4[3])
			}
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() string {
	return strconv.FormatInt(g.Next(), 10)
}

// Next 生成数值形式的 ID，同一生成器产生的 ID 严格递增
func (g *SnowflakeGenerator) Next() int64 {
	for {
		oldState := atomic.LoadInt64(&g.state)
		oldTimestamp := oldState >> sequenceBits
		oldSequence := oldState & maxSequence

		now := time.Now().UnixMilli() - g.epoch

		var timestamp, sequence int64
		if now <= oldTimestamp {
			// 同一毫秒或时钟回拨，沿用旧时间戳递增序列号
			timestamp = oldTimestamp
			sequence = (oldSequence + 1) & maxSequence
			if sequence == 0 {
				timestamp = oldTimestamp + 1
			}
		} else {
			timestamp = now
		}

		if atomic.CompareAndSwapInt64(&g.state, oldState, timestamp<<sequenceBits|sequence) {
			return timestamp<<timestampShift | g.machineID<<machineIDShift | sequence
		}
	}
}
