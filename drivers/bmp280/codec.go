package bmp280

// Compensation formulas from the datasheet (section 3.11.3), integer
// variant. Temperature is returned in centi-°C, pressure in Q24.8 Pa.

// compensateTemp converts a raw 20-bit temperature reading. tFine carries
// the fine resolution value the pressure compensation needs.
func compensateTemp(adcT int32, cal Calibration) (centiC int32, tFine int32) {
	var1 := (((adcT >> 3) - int32(cal.T1)<<1) * int32(cal.T2)) >> 11
	var2 := (((((adcT >> 4) - int32(cal.T1)) * ((adcT >> 4) - int32(cal.T1))) >> 12) * int32(cal.T3)) >> 14
	tFine = var1 + var2
	centiC = (tFine*5 + 128) >> 8
	return centiC, tFine
}

// compensatePress converts a raw 20-bit pressure reading using the 64-bit
// formula. Returns Pa in Q24.8, or 0 when the divisor would be zero.
func compensatePress(adcP, tFine int32, cal Calibration) int64 {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(cal.P6)
	var2 += (var1 * int64(cal.P5)) << 17
	var2 += int64(cal.P4) << 35
	var1 = ((var1 * var1 * int64(cal.P3)) >> 8) + ((var1 * int64(cal.P2)) << 12)
	var1 = ((int64(1)<<47 + var1) * int64(cal.P1)) >> 33
	if var1 == 0 {
		return 0 // avoid division by zero
	}
	p := int64(1048576 - adcP)
	p = ((p<<31 - var2) * 3125) / var1
	var1 = (int64(cal.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(cal.P8) * p) >> 19
	return ((p + var1 + var2) >> 8) + int64(cal.P7)<<4
}
