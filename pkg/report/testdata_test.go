package report

// rateReport mirrors the layout of a rate-mode CSV report: lone section titles
// preceded by blank lines, a header shifted into the second column and two
// iterations of one benchmark.
const rateReport = `valid,1
SPECint_rate2006,,
SPECint_rate_base2006,24.5

"Full Results Table"

Benchmark,"Base # Copies","Est. Base Run Time","Est. Base Rate","Base Selected","Base Status","Peak # Copies","Est. Peak Run Time","Est. Peak Rate","Peak Selected","Peak Status",Description
401.bzip2,4,1602.1,24.1,0,S,,,,,,
401.bzip2,4,1590.3,24.3,1,S,,,,,,
429.mcf,4,700.5,52.1,1,S,,,,,,

"Selected Results Table"
`

// speedReport is a speed-mode report with base and peak columns.
const speedReport = `valid,0

"Full Results Table"

Benchmark,"Base Ref Time","Base Run Time","Base Ratio","Base Selected","Base Status","Peak Ref Time","Peak Run Time","Peak Ratio","Peak Selected","Peak Status",Description
470.lbm,13740,500.2,27.5,1,S,13740,480.1,28.6,1,S,
`
