package sqlinline

const QInsertReadingJob = `--sql 2b63fcfe-9750-4434-97d4-da6f379650fa
insert into reading_jobs (id, kind, status, input_json, consent_to_store, client_key, origin_country, created_at, updated_at, expires_at)
values ($1::uuid, $2::text, 'PENDING', $3::jsonb, $4::boolean, $5::text, $6::text, $7::timestamptz, $7::timestamptz, $8::timestamptz);
`

const QSelectReadingJob = `--sql 44d3c384-59c9-4d7b-871a-b972aad6de54
select id::text, kind, status, input_json, consent_to_store, client_key, origin_country, raw_model_output, result_json, error_message, created_at, updated_at, completed_at, expires_at
from reading_jobs
where id = $1::uuid;
`

// QClaimReadingJob only matches PENDING rows, so concurrent claims of the same
// id resolve to exactly one winner.
const QClaimReadingJob = `--sql 4a409bbc-b8f4-4888-a2c3-d751526d73cd
update reading_jobs
set status = 'PROCESSING', updated_at = $2::timestamptz
where id = $1::uuid and status = 'PENDING'
returning id::text, kind, status, input_json, consent_to_store, client_key, origin_country, raw_model_output, result_json, error_message, created_at, updated_at, completed_at, expires_at;
`

const QCompleteReadingJob = `--sql 2dc8346f-e4c6-4ff9-8a9c-d3cee77eb4c1
update reading_jobs
set status = 'DONE',
    result_json = $2::jsonb,
    raw_model_output = $3::text,
    completed_at = $4::timestamptz,
    updated_at = $4::timestamptz,
    expires_at = coalesce($5::timestamptz, expires_at)
where id = $1::uuid and status = 'PROCESSING';
`

const QFailReadingJob = `--sql 99d510e8-1293-4447-819d-9fd567dfcc97
update reading_jobs
set status = 'FAILED',
    error_message = $2::text,
    completed_at = $3::timestamptz,
    updated_at = $3::timestamptz
where id = $1::uuid and status in ('PENDING', 'PROCESSING');
`

const QClearReadingJobImage = `--sql a7a6996c-2def-46fe-89ee-360ea7715024
update reading_jobs
set input_json = input_json - 'image_key' - 'image_mime', updated_at = now()
where id = $1::uuid and input_json ? 'image_key';
`

// QFailStaleReadingJobs fails PROCESSING rows whose worker never recorded a
// terminal state.
const QFailStaleReadingJobs = `--sql 6e0f3b8a-51d2-4c7e-a9b4-3f82c1d7e590
with stale as (
    select id
    from reading_jobs
    where status = 'PROCESSING' and updated_at < $1::timestamptz
    order by updated_at asc
    limit $4::int
    for update skip locked
)
update reading_jobs
set status = 'FAILED',
    error_message = $2::text,
    completed_at = $3::timestamptz,
    updated_at = $3::timestamptz
where id in (select id from stale) and status = 'PROCESSING'
returning id::text;
`

const QDeleteExpiredReadingJobs = `--sql 23dbfaf8-825f-4edb-a93b-af2b8b128e82
with expired as (
    select id
    from reading_jobs
    where expires_at <= $1::timestamptz or created_at < $2::timestamptz
    order by expires_at asc
    limit $3::int
    for update skip locked
)
delete from reading_jobs
where id in (select id from expired)
returning id::text, coalesce(input_json->>'image_key', '');
`
