package irq_test

import (
	"testing"

	"github.com/edujime23/warden/irq"
	"github.com/stretchr/testify/require"
)

func TestMTIPRisesAtOrPastCompare(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 1})
	require.NoError(t, err)

	c.SetMTimeCmp(0, 100)
	c.Advance(99)
	_, mtip := c.IRQLevels(0)
	require.False(t, mtip)

	c.Advance(1)
	_, mtip = c.IRQLevels(0)
	require.True(t, mtip, "mtip must rise the tick mtime first reaches mtimecmp")
}

func TestMTIPIsALevelNotAnEdge(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 1})
	require.NoError(t, err)

	c.SetMTimeCmp(0, 10)
	c.Advance(20)
	_, mtip := c.IRQLevels(0)
	require.True(t, mtip)

	c.Advance(1000)
	_, mtip = c.IRQLevels(0)
	require.True(t, mtip, "mtip stays high until software raises mtimecmp above mtime")

	c.SetMTimeCmp(0, c.MTime()+50)
	_, mtip = c.IRQLevels(0)
	require.False(t, mtip, "raising mtimecmp above mtime drops mtip")
}

func TestMSIPIndependentPerHart(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 2})
	require.NoError(t, err)

	c.SetMSIP(0, true)
	msip0, _ := c.IRQLevels(0)
	msip1, _ := c.IRQLevels(1)
	require.True(t, msip0)
	require.False(t, msip1)
}

func TestMMIOMTimeRoundTrip(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 1})
	require.NoError(t, err)

	require.NoError(t, c.Write(0xBFF8, []byte{1, 0, 0, 0, 0, 0, 0, 0}))
	require.Equal(t, uint64(1), c.MTime())

	got, err := c.Read(0xBFF8, 8)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, got)
}

func TestMMIOMSIPLowByteSignificant(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 1})
	require.NoError(t, err)

	require.NoError(t, c.Write(0x0000, []byte{1, 0xFF, 0xFF, 0xFF}))
	require.True(t, c.MSIP(0))

	got, err := c.Read(0x0000, 4)
	require.NoError(t, err)
	require.Equal(t, byte(1), got[0])
}

func TestMMIOOutOfRangeOffsetFails(t *testing.T) {
	c, err := irq.NewCLINT(irq.CLINTConfig{Harts: 1})
	require.NoError(t, err)

	_, err = c.Read(0x9000, 4)
	require.Error(t, err)
}
