package tmc2209

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mbalug7/go-tmc2209/pkg/hal"
	"github.com/mbalug7/go-tmc2209/pkg/logger"
)

func TestNewModule_InvalidAddress(t *testing.T) {
	_, err := NewModule(&fakeChannel{}, 4)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewModule(&fakeChannel{}, 0, WithDriver(nil))
	assert.Error(t, err)
	_, err = NewModule(&fakeChannel{}, 0, WithShadow(nil))
	assert.Error(t, err)
}

func TestModule_WriteUpdatesShadow(t *testing.T) {
	dev := newFakeDevice(1)
	ch := newWiredChannel(dev)
	m := newTestModule(t, ch, 1)
	ctx := context.Background()

	require.NoError(t, m.Write(ctx, IHOLD_IRUN, 0x00011F10))
	require.NoError(t, ch.Flush())

	value, ok := m.Shadow().Load(IHOLD_IRUN)
	require.True(t, ok)
	assert.Equal(t, uint32(0x00011F10), value)

	stored, ok := dev.value(IHOLD_IRUN)
	require.True(t, ok)
	assert.Equal(t, uint32(0x00011F10), stored)
	assert.Equal(t, uint8(1), m.BusAddress())
}

func TestModule_AccessChecks(t *testing.T) {
	m := newTestModule(t, &fakeChannel{}, 0)
	ctx := context.Background()

	assert.ErrorIs(t, m.Write(ctx, IOIN, 1), ErrNotWritable)
	_, err := m.Read(ctx, IHOLD_IRUN)
	assert.ErrorIs(t, err, ErrNotReadable)
	assert.ErrorIs(t, m.Write(ctx, hal.RegAddress(0x7E), 1), ErrUnknownRegister)
	assert.Zero(t, m.Shadow().Len())
}

func TestModule_ReadUpdatesShadowOnlyOnSuccess(t *testing.T) {
	dev := newFakeDevice(0)
	dev.registers[GCONF] = 0x1C0
	ch := newWiredChannel(dev)
	m := newTestModule(t, ch, 0)
	ctx := context.Background()

	value, err := m.Read(ctx, GCONF)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1C0), value)

	dev.registers[GCONF] = 0x1C1
	dev.corrupt = true
	value, err = m.Read(ctx, GCONF)
	assert.ErrorIs(t, err, ErrCRCMismatch)
	assert.Equal(t, FailedValue, value)

	shadowed, ok := m.Shadow().Load(GCONF)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1C0), shadowed, "failed read must not touch the shadow")
}

func isExchangeID(kv []any) bool {
	if len(kv) != 2 || kv[0] != "exchange" {
		return false
	}
	id, ok := kv[1].(string)
	return ok && len(id) == 8
}

func TestModule_ExchangeTracesShareID(t *testing.T) {
	ml := logger.NewMockLogger()
	exchange := logger.NewMockLogger()
	ml.On("With", []any{"bus_address", uint8(0)}).Return(ml)
	ml.On("With", mock.MatchedBy(isExchangeID)).Return(exchange)
	exchange.On("Debug", mock.Anything, mock.Anything).Return()

	m, err := NewModule(&fakeChannel{}, 0, WithModuleLogger(ml), WithDriver(newTestDriver(t)))
	require.NoError(t, err)

	_, err = m.Read(context.Background(), IOIN)
	assert.ErrorIs(t, err, ErrReplyTimeout)

	ml.AssertNumberOfCalls(t, "With", 2)
	ml.AssertNotCalled(t, "Debug", mock.Anything, mock.Anything)
	for _, state := range []ExchangeState{StateSending, StateDraining, StateWaiting, StateTimedOut} {
		exchange.AssertCalled(t, "Debug", "exchange", []any{"state", state.String()})
	}
	exchange.AssertCalled(t, "Debug", "read failed", mock.Anything)
}

func TestModule_EachExchangeGetsOwnID(t *testing.T) {
	ml := logger.NewMockLogger()
	var ids []string
	ml.On("With", []any{"bus_address", uint8(1)}).Return(ml)
	ml.On("With", mock.MatchedBy(isExchangeID)).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(0).([]any)[1].(string)) }).
		Return(testLogger())

	dev := newFakeDevice(1)
	m, err := NewModule(newWiredChannel(dev), 1, WithModuleLogger(ml), WithDriver(newTestDriver(t)))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.Write(ctx, GCONF, 1))
	_, err = m.Read(ctx, GCONF)
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestModule_NilChannel(t *testing.T) {
	m := newTestModule(t, nil, 0)
	ctx := context.Background()

	assert.NoError(t, m.Write(ctx, GCONF, 1), "writes without channel are skipped")
	_, ok := m.Shadow().Load(GCONF)
	assert.False(t, ok)

	_, err := m.Read(ctx, IOIN)
	assert.ErrorIs(t, err, ErrChannelAbsent)
	assert.False(t, m.Available(ctx))
}

func TestModule_Available(t *testing.T) {
	dev := newFakeDevice(3)
	dev.registers[IOIN] = 0x21000040
	m := newTestModule(t, newWiredChannel(dev), 3)
	ctx := context.Background()

	assert.True(t, m.Available(ctx))

	dev.silent = true
	assert.False(t, m.Available(ctx))
}

func TestModule_SetupDefaults(t *testing.T) {
	dev := newFakeDevice(0)
	ch := newWiredChannel(dev)
	m := newTestModule(t, ch, 0)

	require.NoError(t, m.SetupDefaults(context.Background()))
	require.NoError(t, ch.Flush())

	assert.Equal(t, []hal.RegAddress{GCONF, IHOLD_IRUN, CHOPCONF, PWMCONF, TPWMTHRS, TCOOLTHRS}, dev.writeOrder())
	for _, def := range defaultSequence {
		stored, ok := dev.value(def.reg)
		require.True(t, ok)
		assert.Equal(t, def.value, stored, RegisterName(def.reg))
	}
	assert.Len(t, ch.sent(), 6*writeDatagramLength)
	assert.Contains(t, m.GetModuleConfiguration(), "IHOLD_IRUN")
}

func TestModule_Rewrite(t *testing.T) {
	dev := newFakeDevice(0)
	ch := newWiredChannel(dev)
	shadow := NewShadow()
	shadow.Store(TPOWERDOWN, TPOWERDOWN_DEFAULT)
	m, err := NewModule(ch, 0, WithShadow(shadow), WithModuleLogger(testLogger()), WithDriver(newTestDriver(t)))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Rewrite(ctx, TPOWERDOWN))
	require.NoError(t, ch.Flush())
	stored, ok := dev.value(TPOWERDOWN)
	require.True(t, ok)
	assert.Equal(t, TPOWERDOWN_DEFAULT, stored)

	assert.ErrorIs(t, m.Rewrite(ctx, COOLCONF), ErrNoShadowValue)
}

func TestModule_ConcurrentExchanges(t *testing.T) {
	dev := newFakeDevice(0)
	dev.registers[IOIN] = 0x21000040
	dev.registers[IFCNT] = 3
	m := newTestModule(t, newWiredChannel(dev), 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v, err := m.Read(ctx, IOIN)
			if err == nil && v != 0x21000040 {
				err = assert.AnError
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			v, err := m.Read(ctx, IFCNT)
			if err == nil && v != 3 {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestConfigBuilder_AppliesOnlyChanges(t *testing.T) {
	dev := newFakeDevice(0)
	ch := newWiredChannel(dev)
	m := newTestModule(t, ch, 0)
	ctx := context.Background()

	require.NoError(t, NewConfigBuilder(m).Defaults().Apply(ctx))
	require.NoError(t, ch.Flush())
	assert.Len(t, dev.writeOrder(), len(defaultSequence))

	assert.ErrorIs(t, NewConfigBuilder(m).Defaults().Apply(ctx), ErrConfigUnchanged)

	cb := NewConfigBuilder(m).Defaults().Currents(0x00010A05).StallThreshold(40)
	assert.Equal(t, []hal.RegAddress{IHOLD_IRUN, SGTHRS}, cb.Pending())
	require.NoError(t, cb.Apply(ctx))
	require.NoError(t, ch.Flush())

	writes := dev.writeOrder()
	assert.Equal(t, []hal.RegAddress{IHOLD_IRUN, SGTHRS}, writes[len(defaultSequence):])
	stored, _ := dev.value(SGTHRS)
	assert.Equal(t, uint32(40), stored)
}

func TestConfigBuilder_RejectsReadOnly(t *testing.T) {
	m := newTestModule(t, &fakeChannel{}, 0)

	err := NewConfigBuilder(m).Set(DRV_STATUS, 1).GlobalConfig(1).Apply(context.Background())
	assert.ErrorIs(t, err, ErrNotWritable)
	assert.Zero(t, m.Shadow().Len())
}

func TestShadow(t *testing.T) {
	s := NewShadow()
	s.Store(GCONF.ForWrite(), 1)
	v, ok := s.Load(GCONF)
	require.True(t, ok, "write flag is ignored")
	assert.Equal(t, uint32(1), v)

	cp := s.Copy()
	assert.True(t, s.EqualTo(cp))
	cp.Store(CHOPCONF, 2)
	assert.False(t, s.EqualTo(cp))
	assert.Equal(t, 1, s.Len())

	cp.Delete(CHOPCONF)
	assert.True(t, s.EqualTo(cp))
	assert.Contains(t, s.String(), "GCONF")
}

func TestLookupRegister(t *testing.T) {
	reg, err := LookupRegister("chopconf")
	require.NoError(t, err)
	assert.Equal(t, CHOPCONF, reg)

	reg, err = LookupRegister("0x06")
	require.NoError(t, err)
	assert.Equal(t, IOIN, reg)

	_, err = LookupRegister("0x7E")
	assert.ErrorIs(t, err, ErrUnknownRegister)
	_, err = LookupRegister("bogus")
	assert.ErrorIs(t, err, ErrUnknownRegister)

	assert.Equal(t, "0x7E", RegisterName(0x7E))
	assert.Len(t, Registers(), len(registerTable))
}
